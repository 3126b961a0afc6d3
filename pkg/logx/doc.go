// Package logx is igrelay's structured logging on top of zerolog.
//
// Loggers are values: With adds fixed fields, and a Logger obtained from a
// Service follows every Service.Apply. Sinks are a readable console, a JSON
// file and an optional rate-limited Telegram chat. Every sink masks bot
// tokens. Components tag lines with the well-known fields (Comp, Job,
// Recipient, Chat, From).
package logx
