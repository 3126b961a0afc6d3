package storage

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("storage closed")

// Config configures storage.
//
// Driver values:
//   - "file": JSON recipient record + JSON Lines audit log (default)
//   - "sqlite": SQLite database file
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API behind the recipient registry.
//
// SaveRecipients replaces the whole durable record; LoadRecipients on a store
// that has never been written returns (nil, nil).
type Store interface {
	LoadRecipients(ctx context.Context) ([]int64, error)
	SaveRecipients(ctx context.Context, ids []int64) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	// Location describes where the data lives (path), for operator output.
	Location() string
	Close() error
}

// AuditEntry records an operator action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At            time.Time `json:"at"`
	ActorID       int64     `json:"actor_id"`
	ActorUsername string    `json:"actor_username,omitempty"`
	ChatID        int64     `json:"chat_id,omitempty"`
	Plugin        string    `json:"plugin"`
	Action        string    `json:"action"`
	Target        string    `json:"target,omitempty"`
	OK            int       `json:"ok"`
	Fail          int       `json:"fail"`
	Error         string    `json:"err,omitempty"`
	TookMS        int64     `json:"took_ms"`
	MetaJSON      string    `json:"meta,omitempty"`
}
