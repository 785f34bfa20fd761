package process

import (
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestProcess creates a Process with short timeouts for testing.
func newTestProcess(t *testing.T, command string, opts Options) *Process {
	t.Helper()
	if opts.GracefulTimeout == 0 {
		opts.GracefulTimeout = 100 * time.Millisecond
	}
	if opts.KillTimeout == 0 {
		opts.KillTimeout = 100 * time.Millisecond
	}
	p, err := New("test", command, testLogger(), opts)
	if err != nil {
		t.Fatalf("New(%q) failed: %v", command, err)
	}
	return p
}

func TestPipeRoundTrip(t *testing.T) {
	p := newTestProcess(t, "cat", Options{PipeStdin: true, PipeStdout: true})
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	payload := []byte("raw frame bytes")
	if _, err := p.Stdin().Write(payload); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := p.CloseInput(); err != nil {
		t.Fatalf("CloseInput failed: %v", err)
	}

	got, err := io.ReadAll(p.Stdout())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("stdout = %q, want %q", got, payload)
	}
	if code := p.Wait(time.Second); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestGracefulStop(t *testing.T) {
	p := newTestProcess(t, `sh -c "trap 'exit 0' INT TERM; while :; do sleep 0.1; done"`,
		Options{GracefulTimeout: time.Second})
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	if code := p.Stop(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestForceKillOnTimeout(t *testing.T) {
	p := newTestProcess(t, `sh -c "trap '' INT; sleep 10"`, Options{
		GracefulTimeout: 50 * time.Millisecond,
		KillTimeout:     50 * time.Millisecond,
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if code := p.Stop(); code != 137 {
		t.Errorf("expected exit code 137, got %d", code)
	}
}

func TestWaitReturnsExitCode(t *testing.T) {
	p := newTestProcess(t, "sh -c 'exit 42'", Options{})
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if code := p.Wait(time.Second); code != 42 {
		t.Errorf("expected exit code 42, got %d", code)
	}
	if p.Err() == nil {
		t.Error("expected exit error")
	}
	if info := p.Info(); info.State != StateError {
		t.Errorf("state = %s, want %s", info.State, StateError)
	}
}

func TestStopAfterExit(t *testing.T) {
	p := newTestProcess(t, "true", Options{})
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	<-p.Done()
	if code := p.Stop(); code != 0 {
		t.Errorf("expected exit code 0, got %d", code)
	}
}

func TestStopBeforeStart(t *testing.T) {
	p := newTestProcess(t, "sleep 10", Options{})
	if code := p.Stop(); code != 1 {
		t.Errorf("expected exit code 1, got %d", code)
	}
}

func TestStartTwice(t *testing.T) {
	p := newTestProcess(t, "true", Options{})
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := p.Start(); err == nil {
		t.Error("expected error on second Start")
	}
	p.Wait(time.Second)
}

func TestStartNonExistentCommand(t *testing.T) {
	p := newTestProcess(t, "/nonexistent/command/that/does/not/exist", Options{PipeStdout: true})
	if err := p.Start(); err == nil {
		t.Fatal("expected start error")
	}
	if info := p.Info(); info.State != StateError {
		t.Errorf("state = %s, want %s", info.State, StateError)
	}
}

func TestNewRejectsBadCommands(t *testing.T) {
	if _, err := New("x", `echo "unclosed`, testLogger(), Options{}); err == nil {
		t.Error("expected error for unclosed quote")
	}
	if _, err := New("x", "   ", testLogger(), Options{}); err == nil {
		t.Error("expected error for empty command")
	}
}

type testOutputHandler struct {
	mu    sync.Mutex
	lines []string
}

func (h *testOutputHandler) HandleLine(_, line string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lines = append(h.lines, line)
}

func TestOutputHandlerReceivesLogLines(t *testing.T) {
	handler := &testOutputHandler{}
	var parsed []string
	var parsedMu sync.Mutex
	p := newTestProcess(t, `sh -c "echo line1; echo '[warning] line2' 1>&2"`, Options{
		OutputHandler: handler,
		LogParser: func(line string) (string, string) {
			parsedMu.Lock()
			parsed = append(parsed, line)
			parsedMu.Unlock()
			return "info", line
		},
	})
	if err := p.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if code := p.Wait(time.Second); code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.lines) != 2 {
		t.Errorf("expected 2 lines, got %d: %v", len(handler.lines), handler.lines)
	}
	parsedMu.Lock()
	defer parsedMu.Unlock()
	if len(parsed) != 2 {
		t.Errorf("expected parser to see 2 lines, got %d", len(parsed))
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		want    []string
		wantErr bool
	}{
		{"simple", "ffmpeg -hide_banner -i pipe:0", []string{"ffmpeg", "-hide_banner", "-i", "pipe:0"}, false},
		{"double quotes", `ffmpeg -vf "scale=640:-2, format=nv12"`, []string{"ffmpeg", "-vf", "scale=640:-2, format=nv12"}, false},
		{"single quotes", `sh -c 'exit 3'`, []string{"sh", "-c", "exit 3"}, false},
		{"escaped space", `echo hello\ world`, []string{"echo", "hello world"}, false},
		{"empty quoted arg", `printf ""`, []string{"printf", ""}, false},
		{"extra spaces", "  a   b  ", []string{"a", "b"}, false},
		{"unclosed", `echo "oops`, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCommand(tt.command)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseCommand(%q) = %q, want %q", tt.command, got, tt.want)
			}
		})
	}
}

func TestExitCodeFromError(t *testing.T) {
	if got := exitCodeFromError(nil); got != 0 {
		t.Errorf("exitCodeFromError(nil) = %d, want 0", got)
	}
	if got := exitCodeFromError(io.EOF); got != 1 {
		t.Errorf("exitCodeFromError(EOF) = %d, want 1", got)
	}
}
