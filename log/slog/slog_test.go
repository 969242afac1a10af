package slog

import (
	"bytes"
	"encoding/json"
	stdslog "log/slog"
	"testing"

	"github.com/unkn0wn-root/offcache"
)

func TestLogger_WritesLevelAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := stdslog.NewJSONHandler(&buf, &stdslog.HandlerOptions{Level: stdslog.LevelDebug})
	l := Logger{L: stdslog.New(h)}

	l.Warn("delete old cache failed", offcache.Fields{"generation": "v0"})

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if got["level"] != "WARN" || got["msg"] != "delete old cache failed" || got["generation"] != "v0" {
		t.Fatalf("record = %v", got)
	}
}

func TestLogger_RespectsHandlerLevel(t *testing.T) {
	var buf bytes.Buffer
	l := Logger{L: stdslog.New(stdslog.NewTextHandler(&buf, nil))}
	l.Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug written at info level: %q", buf.String())
	}
}
