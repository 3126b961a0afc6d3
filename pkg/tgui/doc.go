// Package tgui provides small helpers for rendering Telegram HTML messages.
//
// Values of type H are already escaped for ParseMode="HTML"; everything
// built from plain strings goes through Esc.
package tgui
