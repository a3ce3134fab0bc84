package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dhkts1/yoga-app-sub002/pkg/kv"
)

// OutputFormat selects how changes are rendered.
type OutputFormat string

const (
	OutputFormatDefault OutputFormat = "default"
	OutputFormatJSON    OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(s) {
	case OutputFormatDefault, OutputFormatJSON:
		return OutputFormat(s), nil
	}
	return "", fmt.Errorf("unknown format: %s", s)
}

// WaitForChange blocks until another context writes one of keys (any key
// when keys is empty) and returns that change. A timeout <= 0 waits until
// ctx ends.
func WaitForChange(ctx context.Context, backend kv.Backend, keys []string, timeout time.Duration) (kv.Change, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sub, err := backend.Subscribe(ctx)
	if err != nil {
		return kv.Change{}, fmt.Errorf("failed to subscribe: %w", err)
	}
	defer sub.Close()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}
	filter := NewFilter(keys)
	errs := sub.Errors()

	for {
		select {
		case <-ctx.Done():
			return kv.Change{}, ctx.Err()

		case <-timeoutCh:
			return kv.Change{}, fmt.Errorf("timeout waiting for change after %v", timeout)

		case change, ok := <-sub.Events():
			if !ok {
				if err := ctx.Err(); err != nil {
					return kv.Change{}, err
				}
				return kv.Change{}, fmt.Errorf("change stream closed")
			}
			if filter(change) {
				return change, nil
			}

		case _, ok := <-errs:
			// Malformed events are skipped
			if !ok {
				errs = nil
			}
		}
	}
}

// NewFilter returns a predicate matching changes to keys or to backups
// archived from them. An empty list matches everything.
func NewFilter(keys []string) func(kv.Change) bool {
	if len(keys) == 0 {
		return func(kv.Change) bool { return true }
	}
	wanted := make(map[string]bool, len(keys))
	for _, k := range keys {
		wanted[k] = true
	}
	return func(c kv.Change) bool {
		if wanted[c.Key] {
			return true
		}
		original, ok := kv.ParseCorruptedKey(c.Key)
		return ok && wanted[original]
	}
}

// Printer renders changes to a writer.
type Printer struct {
	f formatter
}

// NewPrinter creates a printer for format.
func NewPrinter(format OutputFormat, w io.Writer) (*Printer, error) {
	switch format {
	case OutputFormatDefault:
		return &Printer{f: &defaultFormatter{writer: w}}, nil
	case OutputFormatJSON:
		return &Printer{f: &jsonFormatter{writer: w}}, nil
	}
	return nil, fmt.Errorf("unknown format: %s", format)
}

// Print writes one change.
func (p *Printer) Print(change kv.Change) error {
	return p.f.FormatChange(change)
}

type formatter interface {
	FormatChange(change kv.Change) error
}

type defaultFormatter struct {
	writer io.Writer
}

func (f *defaultFormatter) FormatChange(c kv.Change) error {
	ts := time.UnixMilli(c.AtMs).Format("15:04:05")
	origin := shortOrigin(c.Origin)

	if original, ok := kv.ParseCorruptedKey(c.Key); ok {
		_, err := fmt.Fprintf(f.writer, "🚑 [%s] Corrupted payload archived: key=%s, backup=%s, by=%s\n",
			ts, original, c.Key, origin)
		return err
	}
	if c.Removed() {
		_, err := fmt.Fprintf(f.writer, "🗑️  [%s] Removed: key=%s, by=%s\n", ts, c.Key, origin)
		return err
	}
	_, err := fmt.Fprintf(f.writer, "💾 [%s] Updated: key=%s, by=%s, bytes=%d\n",
		ts, c.Key, origin, len(*c.Value))
	return err
}

type jsonFormatter struct {
	writer io.Writer
}

type jsonEvent struct {
	Event     string          `json:"event"`
	Key       string          `json:"key"`
	BackupKey string          `json:"backup_key,omitempty"`
	Origin    string          `json:"origin"`
	AtMs      int64           `json:"at_ms"`
	Value     json.RawMessage `json:"value,omitempty"`
}

func (f *jsonFormatter) FormatChange(c kv.Change) error {
	event := jsonEvent{Event: "updated", Key: c.Key, Origin: c.Origin, AtMs: c.AtMs}

	if original, ok := kv.ParseCorruptedKey(c.Key); ok {
		event.Event = "corrupted_archived"
		event.Key = original
		event.BackupKey = c.Key
	} else if c.Removed() {
		event.Event = "removed"
	} else if json.Valid([]byte(*c.Value)) {
		event.Value = json.RawMessage(*c.Value)
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change: %w", err)
	}
	_, err = fmt.Fprintf(f.writer, "%s\n", data)
	return err
}

func shortOrigin(origin string) string {
	if len(origin) > 8 {
		return origin[:8]
	}
	return origin
}
