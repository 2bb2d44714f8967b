// Package sink forwards replayed log lines into the system log interface the
// detector watches.
package sink

import (
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/charmbracelet/log"

	"banbench/internal/domain"
)

// Sink receives one line per replayed record. A write failure is fatal to
// the run: the detector cannot meaningfully receive later events once
// earlier ones were dropped.
type Sink interface {
	Emit(line string) error
	Close() error
}

// CommandSink pipes lines into a spawned logger command, one line per
// record, e.g. `logger --priority authpriv.info --tag replay`.
type CommandSink struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
}

// NewCommandSink starts the forwarding command. Priority and tag are
// appended as logger flags when non-empty.
func NewCommandSink(command, priority, tag string) (*CommandSink, error) {
	if strings.TrimSpace(command) == "" {
		return nil, &domain.ConfigurationError{Reason: "sink command is empty"}
	}

	parts := strings.Fields(command)
	args := parts[1:]
	if priority != "" {
		args = append(args, "--priority", priority)
	}
	if tag != "" {
		args = append(args, "--tag", tag)
	}

	cmd := exec.Command(parts[0], args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("open sink stdin: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start sink command %q: %w", parts[0], err)
	}

	log.Debug("sink command started", "command", parts[0], "args", strings.Join(args, " "))
	return &CommandSink{cmd: cmd, stdin: stdin}, nil
}

func (s *CommandSink) Emit(line string) error {
	if _, err := io.WriteString(s.stdin, line+"\n"); err != nil {
		return &domain.SinkWriteError{Err: err}
	}
	return nil
}

func (s *CommandSink) Close() error {
	if err := s.stdin.Close(); err != nil {
		return err
	}
	return s.cmd.Wait()
}

// WriterSink emits lines to an io.Writer. Used for dry runs and tests.
type WriterSink struct {
	W io.Writer
}

func (s *WriterSink) Emit(line string) error {
	if _, err := io.WriteString(s.W, line+"\n"); err != nil {
		return &domain.SinkWriteError{Err: err}
	}
	return nil
}

func (s *WriterSink) Close() error {
	return nil
}
