package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// prettyHandler renders one header line per record followed by indented
// fields. Subject fields (component, item, stage) are folded into the header.
type prettyHandler struct {
	mu        *sync.Mutex
	writer    io.Writer
	level     *slog.LevelVar
	attrs     []slog.Attr
	groups    []string
	addSource bool
}

func newPrettyHandler(w io.Writer, lvl *slog.LevelVar, addSource bool) slog.Handler {
	return &prettyHandler{mu: &sync.Mutex{}, writer: w, level: lvl, addSource: addSource}
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// subject carries the header fields lifted out of the attribute list.
type subject struct {
	component string
	item      string
	stage     string
}

func (h *prettyHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}

	var fields fieldList
	for _, attr := range h.attrs {
		fields.add(h.groups, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		fields.add(h.groups, attr)
		return true
	})

	var subj subject
	var body []field
	for _, f := range fields.entries {
		switch f.key {
		case FieldComponent:
			subj.component = attrString(f.value)
		case FieldItem:
			subj.item = attrString(f.value)
		case FieldStage:
			subj.stage = attrString(f.value)
		case FieldRunID:
			// Run IDs only clutter the console outside debug output.
			if record.Level < slog.LevelInfo {
				body = append(body, f)
			}
		default:
			body = append(body, f)
		}
	}

	var b strings.Builder
	h.writeHeader(&b, record, subj)
	for _, f := range body {
		fmt.Fprintf(&b, "    - %s: %s\n", f.key, formatValue(f.value))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *prettyHandler) writeHeader(b *strings.Builder, record slog.Record, subj subject) {
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(formatTimestamp(ts))
	b.WriteString(" " + levelLabel(record.Level))
	if subj.component != "" {
		b.WriteString(" [" + subj.component + "]")
	}
	if s := subj.String(); s != "" {
		b.WriteString(" " + s)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	b.WriteString(" - " + msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			b.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	b.WriteByte('\n')
}

// String renders `"item" (stage)`, dropping whichever half is empty.
func (s subject) String() string {
	item := strings.TrimSpace(s.item)
	stage := strings.TrimSpace(s.stage)
	switch {
	case item != "" && stage != "":
		return strconv.Quote(item) + " (" + stage + ")"
	case item != "":
		return strconv.Quote(item)
	default:
		return stage
	}
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := h.clone()
	next.attrs = append(next.attrs, attrs...)
	return next
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	next := h.clone()
	next.groups = append(next.groups, name)
	return next
}

func (h *prettyHandler) clone() *prettyHandler {
	next := *h
	next.attrs = slices.Clone(h.attrs)
	next.groups = slices.Clone(h.groups)
	return &next
}

type field struct {
	key   string
	value slog.Value
}

// fieldList flattens groups into dotted keys. A repeated key keeps its first
// position and takes the latest value.
type fieldList struct {
	entries []field
	index   map[string]int
}

func (l *fieldList) add(prefix []string, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	value := attr.Value.Resolve()
	if value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = append(slices.Clone(prefix), attr.Key)
		}
		for _, child := range value.Group() {
			l.add(next, child)
		}
		return
	}
	if attr.Key == "" {
		return
	}
	key := strings.Join(append(slices.Clone(prefix), attr.Key), ".")
	if l.index == nil {
		l.index = make(map[string]int)
	}
	if pos, ok := l.index[key]; ok {
		l.entries[pos].value = value
		return
	}
	l.index[key] = len(l.entries)
	l.entries = append(l.entries, field{key: key, value: value})
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
