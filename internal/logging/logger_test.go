package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func resetState() {
	mutex.Lock()
	moduleLoggers = make(map[string]*slog.Logger)
	moduleLevelVars = make(map[string]*slog.LevelVar)
	isInitialized = false
	globalConfig = Config{}
	mutex.Unlock()
}

// captureSink routes all module output into buf for the duration of a test.
func captureSink(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	prev := sink.Load()
	var h slog.Handler = slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	sink.Store(&h)
	t.Cleanup(func() { sink.Store(prev) })
}

func TestModuleLevelOverride(t *testing.T) {
	resetState()

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"pipeline": "debug",
			"api":      "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"pipeline", true, true, true},
		{"api", false, false, true},
		{"other", false, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			handler := GetLogger(tt.module).Handler()
			ctx := context.Background()

			if got := handler.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("module %q: Debug enabled = %v, want %v", tt.module, got, tt.wantDebug)
			}
			if got := handler.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("module %q: Info enabled = %v, want %v", tt.module, got, tt.wantInfo)
			}
			if got := handler.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("module %q: Warn enabled = %v, want %v", tt.module, got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	resetState()

	before := GetLogger("ring")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"ring": "debug"}})

	after := GetLogger("ring")
	if before != after {
		t.Error("logger should be cached across Initialize")
	}
	if !before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("cached logger should have debug enabled after Initialize")
	}
}

func TestSetLevelsAtRuntime(t *testing.T) {
	resetState()
	Initialize(Config{Level: "info", Format: "json"})

	logger := GetLogger("encoder")
	if logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should start disabled")
	}

	SetLevels(Config{Level: "warn", Modules: map[string]string{"encoder": "debug"}})

	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("encoder should log debug after SetLevels")
	}
	if GetLogger("mux").Handler().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("new loggers should pick up the warn global level")
	}

	mutex.RLock()
	format := globalConfig.Format
	mutex.RUnlock()
	if format != "json" {
		t.Errorf("SetLevels must keep the format, got %q", format)
	}
}

func TestModuleAttributeAndGroups(t *testing.T) {
	resetState()
	var buf bytes.Buffer
	captureSink(t, &buf)

	logger := GetLogger("session").With("segment", 2).WithGroup("frame")
	logger.Info("written", "pts", 333333)

	out := buf.String()
	for _, want := range []string{"module=session", "segment=2", "frame.pts=333333", "msg=written"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

func TestDisabledLevelNotWritten(t *testing.T) {
	resetState()
	var buf bytes.Buffer
	captureSink(t, &buf)

	GetLogger("capture").Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug line written at info level: %q", buf.String())
	}
}

func TestMultiHandlerDebugOutput(t *testing.T) {
	var buf bytes.Buffer

	debugHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	infoHandler := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debugHandler, nil, infoHandler)).With("module", "test")
	logger.Debug("debug only message")

	if count := strings.Count(buf.String(), "debug only message"); count != 1 {
		t.Errorf("Expected 1 debug message, got %d. Output: %s", count, buf.String())
	}

	logger.Info("both")
	if count := strings.Count(buf.String(), "both"); count != 2 {
		t.Errorf("Expected 2 info messages, got %d", count)
	}
}

func TestParseLevelValues(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		isNil bool
	}{
		{"debug", slog.LevelDebug, false},
		{"DEBUG", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"invalid", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input)
			switch {
			case tt.isNil && got != nil:
				t.Errorf("parseLevel(%q) = %v, want nil", tt.input, *got)
			case !tt.isNil && got == nil:
				t.Errorf("parseLevel(%q) = nil, want %v", tt.input, tt.want)
			case !tt.isNil && *got != tt.want:
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, *got, tt.want)
			}
		})
	}
}
