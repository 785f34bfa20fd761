// Package process runs media subprocesses such as ffmpeg encoders and
// screen grabbers.
//
// A Process wraps os/exec with:
//   - optional stdin/stdout pipes for raw frames and encoded output
//   - stderr (and stdout when not piped) streamed to a logger with pluggable
//     log-level parsing
//   - graceful shutdown with SIGINT and a configurable timeout
//   - force kill with SIGKILL if graceful shutdown times out
//
// Example feeding raw frames to an encoder:
//
//	p, err := process.New("encoder", cmd, logger, process.Options{PipeStdin: true})
//	if err != nil {
//	    return err
//	}
//	if err := p.Start(); err != nil {
//	    return err
//	}
//	p.Stdin().Write(frame)
//	p.CloseInput()
//	code := p.Wait(10 * time.Second)
package process
