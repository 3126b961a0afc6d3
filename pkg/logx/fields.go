package logx

import (
	"time"

	"github.com/rs/zerolog"
)

// Field mutates a zerolog event. Fields apply in order; a repeated key keeps
// the later value in JSON sinks.
type Field func(e *zerolog.Event)

func String(k, v string) Field            { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field           { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field       { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Uint64(k string, v uint64) Field     { return func(e *zerolog.Event) { e.Uint64(k, v) } }
func Bool(k string, v bool) Field         { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }

func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Well-known keys. Components attach these instead of spelling the key so
// log queries can rely on one name per concept.
const (
	KeyComp      = "comp"
	KeyJob       = "job"
	KeyRecipient = "recipient"
	KeyChat      = "chat_id"
	KeyFrom      = "from_id"
)

// Comp names the component that owns a logger.
func Comp(name string) Field { return String(KeyComp, name) }

// Job tags lines belonging to one broadcast.
func Job(id string) Field { return String(KeyJob, id) }

// Recipient is the chat id a delivery was addressed to.
func Recipient(id int64) Field { return Int64(KeyRecipient, id) }

func Chat(id int64) Field { return Int64(KeyChat, id) }
func From(id int64) Field { return Int64(KeyFrom, id) }
