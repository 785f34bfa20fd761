package logging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

// journalSender has the signature of journal.Send.
type journalSender func(message string, priority journal.Priority, vars map[string]string) error

// JournalHandler is a slog.Handler writing to the systemd journal.
//
// Attributes become journal fields named after the upper-cased key, with open
// groups joined by "_". Session loggers carry session and segment attributes,
// so
//
//	journalctl -t oleppy SESSION=default SEGMENT=2
//
// selects one recording segment. A classified error attribute also sets
// <KEY>_CODE and <KEY>_KIND, for example ERROR_KIND=fatal_device.
type JournalHandler struct {
	level  slog.Leveler
	send   journalSender
	fields map[string]string // from WithAttrs, never modified after creation
	prefix string            // open groups, ends in "_" when set
}

// NewJournalHandler creates a handler sending records at or above level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return newJournalHandler(level, journal.Send)
}

func newJournalHandler(level slog.Leveler, send journalSender) *JournalHandler {
	return &JournalHandler{level: level, send: send, fields: map[string]string{}}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler. MESSAGE and PRIORITY are added by the
// sender.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	maps.Copy(fields, h.fields)
	r.Attrs(func(a slog.Attr) bool {
		putField(fields, h.prefix, a)
		return true
	})
	fields["SYSLOG_IDENTIFIER"] = Identifier

	if err := h.send(r.Message, journalPriority(r.Level), fields); err != nil {
		fmt.Fprintf(os.Stderr, "journal: %v\n", err)
		return err
	}
	return nil
}

// WithAttrs implements slog.Handler. The attributes are rendered once here
// instead of on every record.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := maps.Clone(h.fields)
	for _, a := range attrs {
		putField(fields, h.prefix, a)
	}
	return &JournalHandler{level: h.level, send: h.send, fields: fields, prefix: h.prefix}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	name = fieldName(name)
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, send: h.send, fields: h.fields, prefix: h.prefix + name + "_"}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// reservedFields are set by the handler or the sender.
var reservedFields = map[string]bool{
	"MESSAGE":           true,
	"PRIORITY":          true,
	"SYSLOG_IDENTIFIER": true,
}

func putField(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		// An empty key inlines the group.
		if name := fieldName(a.Key); name != "" {
			prefix += name + "_"
		}
		for _, ga := range a.Value.Group() {
			putField(fields, prefix, ga)
		}
		return
	}

	name := fieldName(a.Key)
	if name == "" {
		return
	}
	key := prefix + name
	if reservedFields[key] {
		key = "ATTR_" + key
	}

	switch a.Value.Kind() {
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		err, ok := a.Value.Any().(error)
		if !ok {
			fields[key] = a.Value.String()
			return
		}
		fields[key] = err.Error()
		var fe *faults.Error
		if errors.As(err, &fe) {
			fields[key+"_CODE"] = string(fe.Code)
			fields[key+"_KIND"] = string(fe.Kind)
		}
	default:
		fields[key] = a.Value.String()
	}
}

// fieldName converts an attribute key into a journal field name: upper-case
// letters, digits and underscores, not starting with an underscore or digit.
func fieldName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(key) {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9', r == '_':
			if b.Len() > 0 {
				b.WriteRune(r)
			}
		default:
			if b.Len() > 0 {
				b.WriteByte('_')
			}
		}
	}
	return b.String()
}

// IsJournalAvailable checks if systemd journal is available.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
