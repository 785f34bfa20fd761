package ffmpeg

import "strings"

// ParseLogLevel extracts the log level from ffmpeg output.
// With -loglevel level+info ffmpeg writes "[info] message" or
// "[component @ 0x...] [level] message". The level is stripped and the
// component kept. Bare key=value lines from -progress are reported at debug.
func ParseLogLevel(line string) (level, msg string) {
	if isProgressLine(line) {
		return "debug", line
	}
	if len(line) < 3 || line[0] != '[' {
		return "info", line
	}

	end := strings.Index(line, "] ")
	if end == -1 {
		return "info", line
	}

	bracket := line[1:end]
	if isLogLevel(bracket) {
		return bracket, line[end+2:]
	}

	component := line[:end+2]
	rest := line[end+2:]
	if len(rest) > 2 && rest[0] == '[' {
		if nextEnd := strings.Index(rest, "] "); nextEnd != -1 {
			nextBracket := rest[1:nextEnd]
			if isLogLevel(nextBracket) {
				return nextBracket, component + rest[nextEnd+2:]
			}
		}
	}

	return "info", line
}

func isLogLevel(s string) bool {
	switch s {
	case "quiet", "panic", "fatal", "error", "warning", "info", "verbose", "debug", "trace":
		return true
	}
	return false
}

func isProgressLine(line string) bool {
	key, _, ok := strings.Cut(line, "=")
	if !ok || key == "" {
		return false
	}
	for _, r := range key {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
