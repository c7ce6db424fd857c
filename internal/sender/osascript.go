// Package sender transmits text messages through the macOS Messages client
// by running an AppleScript with osascript.
package sender

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ignite/textdispatch/internal/service/sending"
)

//go:embed send.applescript
var sendScript []byte

// DefaultTimeout bounds a single osascript invocation.
const DefaultTimeout = 30 * time.Second

// Runner executes a command with stdin and returns its stderr.
type Runner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) (stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stderr.Bytes(), err
}

// SendError carries the client's diagnostic output for a failed send.
type SendError struct {
	Output string
	Err    error
}

func (e *SendError) Error() string {
	if e.Output != "" {
		return e.Output
	}
	return e.Err.Error()
}

func (e *SendError) Unwrap() error { return e.Err }

// OSAScriptSender implements sending.Sender with osascript.
type OSAScriptSender struct {
	runner  Runner
	binary  string
	timeout time.Duration
	now     func() time.Time
}

var _ sending.Sender = (*OSAScriptSender)(nil)

// Config holds the sender's settings.
type Config struct {
	Binary  string
	Timeout time.Duration
}

func NewOSAScriptSender(cfg Config, runner Runner) *OSAScriptSender {
	if runner == nil {
		runner = ExecRunner{}
	}
	if cfg.Binary == "" {
		cfg.Binary = "osascript"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &OSAScriptSender{runner: runner, binary: cfg.Binary, timeout: cfg.Timeout, now: time.Now}
}

// Send hands (address, text) to the script and returns the time captured
// just before the client was invoked.
func (s *OSAScriptSender) Send(ctx context.Context, address, text string) (time.Time, error) {
	if address == "" {
		return time.Time{}, fmt.Errorf("send: empty address")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sentAt := s.now()
	stderr, err := s.runner.Run(ctx, s.binary, []string{"-", address, text}, sendScript)
	if err != nil {
		return sentAt, &SendError{Output: strings.TrimSpace(string(stderr)), Err: err}
	}
	return sentAt, nil
}
