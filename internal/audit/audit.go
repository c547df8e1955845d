// Package audit appends session events to a JSON-lines file.
package audit

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const EventJoin = "JOIN"

// Logger writes one JSON object per line. A nil *Logger discards everything.
type Logger struct {
	mu  sync.Mutex
	h   slog.Handler
	c   io.Closer
	log *slog.Logger
}

// Open appends to path, creating it and its directory when missing.
func Open(path string, log *slog.Logger) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	l := New(f, log)
	l.c = f
	return l, nil
}

// New writes audit lines to w.
func New(w io.Writer, log *slog.Logger) *Logger {
	if log == nil {
		log = slog.Default()
	}

	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			// Record keeps client keys away from the built-in names, so these
			// only ever see the handler's own time, level and message.
			switch a.Key {
			case slog.LevelKey:
				return slog.Attr{}
			case slog.MessageKey:
				if a.Value.String() == "" {
					return slog.Attr{}
				}
				a.Key = "event"
			case slog.TimeKey:
				if a.Value.Kind() != slog.KindTime {
					return a
				}
				a.Key = "timestamp"
				a.Value = slog.StringValue(a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})

	return &Logger{h: h, log: log}
}

// Join records a participant being issued a room token.
func (l *Logger) Join(ctx context.Context, name, room, role string) {
	l.write(ctx, EventJoin, []slog.Attr{
		slog.String("name", name),
		slog.String("room", room),
		slog.String("role", role),
	})
}

const clientGroup = "client"

// reserved keys are written by the handler itself. Client fields using them
// are kept under the client group instead.
var reserved = map[string]bool{
	slog.TimeKey:    true,
	slog.LevelKey:   true,
	slog.MessageKey: true,
	"timestamp":     true,
}

// Record appends a client supplied entry. A string "event" field becomes the
// line's event name; all other fields are kept in key order.
func (l *Logger) Record(ctx context.Context, entry map[string]any) {
	event, isString := entry["event"].(string)

	keys := make([]string, 0, len(entry))
	for k := range entry {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var attrs, clashes []slog.Attr
	for _, k := range keys {
		a := slog.Any(k, entry[k])
		switch {
		case k == "event" && isString:
		case k == "event" || reserved[k]:
			clashes = append(clashes, a)
		default:
			attrs = append(attrs, a)
		}
	}
	if len(clashes) > 0 {
		// a client field named "client" joins the group so the key stays unique
		kept := attrs[:0]
		for _, a := range attrs {
			if a.Key == clientGroup {
				clashes = append(clashes, a)
				continue
			}
			kept = append(kept, a)
		}
		attrs = append(kept, slog.Attr{Key: clientGroup, Value: slog.GroupValue(clashes...)})
	}

	l.write(ctx, event, attrs)
}

func (l *Logger) write(ctx context.Context, event string, attrs []slog.Attr) {
	if l == nil {
		return
	}

	r := slog.NewRecord(time.Now(), slog.LevelInfo, event, 0)
	r.AddAttrs(attrs...)

	if err := l.handle(ctx, r); err != nil {
		l.log.WarnContext(ctx, "could not write audit entry", "event", event, "err", err)
	}
}

func (l *Logger) handle(ctx context.Context, r slog.Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.h.Handle(ctx, r)
}

func (l *Logger) Close() error {
	if l == nil || l.c == nil {
		return nil
	}
	if err := l.c.Close(); err != nil {
		l.log.Warn("could not close audit log", "err", err)
		return err
	}
	return nil
}
