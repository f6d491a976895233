package capture

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/fleetsight/fleetsight/internal/sessions"
)

// ExecSource runs a platform capture command (eslog on macOS, an auditd or
// eBPF shim elsewhere) that drains buffered process events as one JSON object
// per line: {"path","user","pid","timestamp","kind"}.
type ExecSource struct {
	method  string
	command string
	args    []string
}

func NewExecSource(method, command string, args ...string) *ExecSource {
	return &ExecSource{method: method, command: command, args: args}
}

func (s *ExecSource) Method() string {
	return s.method
}

// Events runs the capture command and parses its output. A command that cannot
// run at all is ErrUnavailable; malformed output lines are skipped so one bad
// record never discards the batch.
func (s *ExecSource) Events(ctx context.Context) ([]sessions.RawProcessEvent, error) {
	cmd := exec.CommandContext(ctx, s.command, s.args...)
	out, err := cmd.Output()
	if err != nil {
		slog.Warn("Capture command failed", "command", s.command, "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, s.command, err)
	}
	return ParseEvents(bytes.NewReader(out))
}

// ParseEvents decodes newline-delimited JSON process events.
func ParseEvents(r io.Reader) ([]sessions.RawProcessEvent, error) {
	var events []sessions.RawProcessEvent

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var ev sessions.RawProcessEvent
		if err := json.Unmarshal(line, &ev); err != nil {
			slog.Warn("Skipping malformed capture line", "error", err)
			continue
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading events: %v", ErrUnavailable, err)
	}

	return events, nil
}
