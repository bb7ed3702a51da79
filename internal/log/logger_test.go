package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: "json", Component: ComponentAuth, Output: &buf})

	logger.Info("signed in", FieldUserID, "u1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry[FieldComponent] != ComponentAuth {
		t.Errorf("component = %v, want %s", entry[FieldComponent], ComponentAuth)
	}
	if entry[FieldUserID] != "u1" {
		t.Errorf("user_id = %v, want u1", entry[FieldUserID])
	}
}

func TestWithComponentReplacesComponent(t *testing.T) {
	var buf bytes.Buffer
	root := New(Config{Format: "text", Output: &buf}).With(FieldRequestID, "req-1")

	child := root.WithComponent(ComponentStorage)
	child.Info("query")

	line := buf.String()
	if strings.Count(line, "component=") != 1 {
		t.Fatalf("expected exactly one component attribute, got %q", line)
	}
	if !strings.Contains(line, "component=storage") {
		t.Errorf("missing component=storage in %q", line)
	}
	if !strings.Contains(line, "request_id=req-1") {
		t.Errorf("attributes added with With were lost: %q", line)
	}
	if child.Component() != ComponentStorage {
		t.Errorf("Component() = %q", child.Component())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Error("warn message missing")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogFieldsBuilder(t *testing.T) {
	f := NewFields().
		WithRecord("expenses", "r1", "u1", 1250).
		WithPeriod("week", -1).
		WithError(nil)

	if f[FieldRecordKind] != "expenses" || f[FieldRecordID] != "r1" || f[FieldAmountCents] != int64(1250) {
		t.Errorf("record fields wrong: %v", f)
	}
	if f[FieldOffset] != -1 {
		t.Errorf("offset = %v", f[FieldOffset])
	}
	if _, ok := f[FieldError]; ok {
		t.Error("nil error should not add a field")
	}
	if got := len(f.ToSlice()); got != len(f)*2 {
		t.Errorf("ToSlice length = %d, want %d", got, len(f)*2)
	}
}
