package process

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/PZwoodcat/Oleppy-Free/internal/logging"
)

// OutputHandler receives log lines from the subprocess.
type OutputHandler interface {
	HandleLine(source, line string)
}

// LogParser parses a log line and returns the log level and message.
// Used to extract structured log info from ffmpeg output.
type LogParser func(line string) (level, msg string)

// Options configures how a Process wires its standard streams.
type Options struct {
	// PipeStdin exposes the child's stdin through Stdin.
	PipeStdin bool
	// PipeStdout exposes the child's stdout through Stdout instead of logging it.
	PipeStdout bool

	ProcessLogger logging.Logger // logger for process output (nil = use logger)
	LogParser     LogParser      // nil = every line is logged at info
	OutputHandler OutputHandler

	GracefulTimeout time.Duration // SIGINT to SIGKILL, default 5s
	KillTimeout     time.Duration // SIGKILL to giving up, default 5s
}

// Process manages the lifecycle of one subprocess that carries media over
// its standard streams.
type Process struct {
	id      string
	command string
	args    []string
	opts    Options
	logger  logging.Logger

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *os.File
	startedAt time.Time
	exitCode  int
	exitErr   error

	done      chan struct{}
	logsDone  chan struct{}
	logFiles  []*os.File
	inputOnce sync.Once
}

// New parses command and prepares a process. It does not start it.
func New(id, command string, logger logging.Logger, opts Options) (*Process, error) {
	args, err := parseCommand(command)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	if opts.GracefulTimeout <= 0 {
		opts.GracefulTimeout = 5 * time.Second
	}
	if opts.KillTimeout <= 0 {
		opts.KillTimeout = 5 * time.Second
	}
	return &Process{
		id:      id,
		command: command,
		args:    args,
		opts:    opts,
		logger:  logger,
		state:   StateIdle,
		done:    make(chan struct{}),
	}, nil
}

// Command returns the command string.
func (p *Process) Command() string {
	return p.command
}

// Start launches the subprocess.
func (p *Process) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateIdle {
		return fmt.Errorf("process %s already started", p.id)
	}
	p.state = StateStarting

	cmd := exec.Command(p.args[0], p.args[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var (
		childEnds []*os.File
		logReads  []*os.File
		logNames  []string
	)
	fail := func(err error) error {
		for _, f := range childEnds {
			f.Close()
		}
		for _, f := range logReads {
			f.Close()
		}
		if p.stdout != nil {
			p.stdout.Close()
			p.stdout = nil
		}
		p.state = StateError
		return err
	}

	if p.opts.PipeStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			return fail(fmt.Errorf("stdin pipe: %w", err))
		}
		p.stdin = stdin
	}

	// os.Pipe instead of StdoutPipe: Wait must not close the read end while
	// the consumer still drains buffered output.
	if p.opts.PipeStdout {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(fmt.Errorf("stdout pipe: %w", err))
		}
		cmd.Stdout = w
		p.stdout = r
		childEnds = append(childEnds, w)
	} else {
		r, w, err := os.Pipe()
		if err != nil {
			return fail(fmt.Errorf("stdout pipe: %w", err))
		}
		cmd.Stdout = w
		childEnds = append(childEnds, w)
		logReads = append(logReads, r)
		logNames = append(logNames, "stdout")
	}

	r, w, err := os.Pipe()
	if err != nil {
		return fail(fmt.Errorf("stderr pipe: %w", err))
	}
	cmd.Stderr = w
	childEnds = append(childEnds, w)
	logReads = append(logReads, r)
	logNames = append(logNames, "stderr")

	if err := cmd.Start(); err != nil {
		p.logger.Error("Failed to start process", "error", err, "command", p.command)
		return fail(err)
	}
	for _, f := range childEnds {
		f.Close()
	}

	p.cmd = cmd
	p.startedAt = time.Now()
	p.state = StateRunning
	p.logFiles = logReads
	p.logger.Info("Process started", "id", p.id, "pid", cmd.Process.Pid, "command", p.command)

	var wg sync.WaitGroup
	for i, f := range logReads {
		wg.Add(1)
		go func(f *os.File, source string) {
			defer wg.Done()
			p.streamOutput(f, source)
		}(f, logNames[i])
	}
	p.logsDone = make(chan struct{})
	go func() {
		wg.Wait()
		close(p.logsDone)
	}()

	go p.wait()
	return nil
}

// wait reaps the child and records its exit status.
func (p *Process) wait() {
	err := p.cmd.Wait()

	// Grandchildren may keep the log pipes open; do not wait on them forever.
	select {
	case <-p.logsDone:
	case <-time.After(500 * time.Millisecond):
	}
	for _, f := range p.logFiles {
		f.Close()
	}

	p.mu.Lock()
	p.exitErr = err
	p.exitCode = exitCodeFromError(err)
	if err != nil && p.state != StateStopping {
		p.state = StateError
	} else {
		p.state = StateIdle
	}
	p.mu.Unlock()

	if err != nil && p.exitCode == 1 {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			p.logger.Error("Process exited with error", "error", err)
		}
	}
	p.logger.Info("Process exited", "id", p.id, "exit_code", p.exitCode)
	close(p.done)
}

// Stdin returns the child's stdin, or nil when it is not piped.
func (p *Process) Stdin() io.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdin == nil {
		return nil
	}
	return p.stdin
}

// Stdout returns the child's stdout, or nil when it is not piped.
// It reaches EOF once the child and any inheritors close it.
func (p *Process) Stdout() io.Reader {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stdout == nil {
		return nil
	}
	return p.stdout
}

// CloseInput closes the child's stdin, signalling end of input.
func (p *Process) CloseInput() error {
	var err error
	p.inputOnce.Do(func() {
		p.mu.Lock()
		stdin := p.stdin
		p.mu.Unlock()
		if stdin != nil {
			err = stdin.Close()
		}
	})
	return err
}

// Done is closed once the process has exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// ExitCode returns the exit code after Done is closed.
func (p *Process) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

// Err returns the error reported by Wait after Done is closed.
func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Wait waits up to timeout for a natural exit, then stops the process.
// Returns the exit code.
func (p *Process) Wait(timeout time.Duration) int {
	if !p.started() {
		return 1
	}
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(timeout):
		p.logger.Warn("Process did not exit in time, stopping", "id", p.id, "timeout", timeout)
		return p.Stop()
	}
}

// Stop sends SIGINT, waits for the graceful timeout, then kills.
// Returns the exit code, 137 when the process had to be killed.
func (p *Process) Stop() int {
	if !p.started() {
		return 1
	}
	select {
	case <-p.done:
		return p.ExitCode()
	default:
	}

	p.mu.Lock()
	p.state = StateStopping
	p.mu.Unlock()

	_ = p.CloseInput()
	p.sendStopSignal()
	return p.waitForExit(p.opts.GracefulTimeout)
}

// Info returns a snapshot of the process state.
func (p *Process) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	info := Info{
		ID:        p.id,
		State:     p.state,
		StartedAt: p.startedAt,
		LastError: p.exitErr,
	}
	if p.cmd != nil && p.cmd.Process != nil {
		info.PID = p.cmd.Process.Pid
	}
	return info
}

func (p *Process) started() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cmd != nil
}

// exitCodeFromError extracts exit code from process error.
// Returns 0 for nil error, the exit code for ExitError, or 1 for other errors.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal())
		}
	}
	return 1
}

// sendStopSignal sends SIGINT to the subprocess without waiting.
func (p *Process) sendStopSignal() {
	if p.cmd == nil || p.cmd.Process == nil {
		return
	}
	p.logger.Info("Sending SIGINT to process", "pid", p.cmd.Process.Pid)
	if err := p.cmd.Process.Signal(syscall.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		p.logger.Warn("Failed to send SIGINT", "error", err)
	}
}

// waitForExit waits for the process to exit with a timeout, force-killing if needed.
func (p *Process) waitForExit(timeout time.Duration) int {
	select {
	case <-p.done:
		return p.ExitCode()
	case <-time.After(timeout):
		p.logger.Warn("Graceful shutdown timeout, forcing kill", "timeout", timeout)
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.logger.Error("Failed to kill process", "error", err)
		}
		select {
		case <-p.done:
		case <-time.After(p.opts.KillTimeout):
			p.logger.Error("Process did not exit after kill signal")
		}
		return 137
	}
}

// streamOutput logs each line of a non-media output stream.
func (p *Process) streamOutput(reader io.Reader, source string) {
	scanner := bufio.NewScanner(reader)

	logger := p.opts.ProcessLogger
	if logger == nil {
		logger = p.logger
	}

	for scanner.Scan() {
		line := scanner.Text()

		if p.opts.OutputHandler != nil {
			p.opts.OutputHandler.HandleLine(source, line)
		}

		level, msg := "info", line
		if p.opts.LogParser != nil {
			level, msg = p.opts.LogParser(line)
		}

		switch level {
		case "fatal", "error", "panic":
			logger.Error(msg, "source", source)
		case "warning":
			logger.Warn(msg, "source", source)
		case "debug", "trace", "verbose":
			logger.Debug(msg, "source", source)
		default:
			logger.Info(msg, "source", source)
		}
	}

	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		p.logger.Debug("Output stream ended", "source", source, "error", err)
	}
}

// parseCommand parses a command string into arguments
// Handles quoted strings and basic escaping.
func parseCommand(command string) ([]string, error) {
	var args []string
	var current strings.Builder
	inQuote := false
	quoteChar := rune(0)
	quoted := false

	runes := []rune(strings.TrimSpace(command))

	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '"' || r == '\'':
			switch {
			case !inQuote:
				inQuote = true
				quoteChar = r
				quoted = true
			case r == quoteChar:
				inQuote = false
				quoteChar = 0
			default:
				current.WriteRune(r)
			}
		case r == ' ' && !inQuote:
			if current.Len() > 0 || quoted {
				args = append(args, current.String())
				current.Reset()
				quoted = false
			}
		case r == '\\' && i+1 < len(runes):
			i++
			current.WriteRune(runes[i])
		default:
			current.WriteRune(r)
		}
	}

	if current.Len() > 0 || quoted {
		args = append(args, current.String())
	}

	if inQuote {
		return nil, fmt.Errorf("unclosed quote in command")
	}

	return args, nil
}
