// Package hook runs the user's post-transcription command.
package hook

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// Job describes one finished transcript.
type Job struct {
	Text       string
	OutputPath string
	SessionID  string
	Partial    bool
	Timestamp  time.Time
}

// Runner executes a shell-style command line with the transcript on stdin.
type Runner struct {
	Command string
	Timeout time.Duration
	logger  *logrus.Logger
}

func NewRunner(command string, timeout time.Duration, logger *logrus.Logger) *Runner {
	return &Runner{Command: command, Timeout: timeout, logger: logger}
}

// Run executes the command. The transcript is written to stdin and exported
// as WHISPERCLI_TEXT; the output file as WHISPERCLI_OUTPUT.
func (r *Runner) Run(ctx context.Context, job Job) error {
	argv, err := ParseArgs(r.Command)
	if err != nil {
		return fmt.Errorf("parse hook command: %w", err)
	}
	if len(argv) == 0 {
		return fmt.Errorf("no output.hook_command configured")
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(job.Text)
	cmd.WaitDelay = time.Second
	cmd.Env = append(os.Environ(),
		"WHISPERCLI_TEXT="+job.Text,
		"WHISPERCLI_OUTPUT="+job.OutputPath,
		"WHISPERCLI_SESSION="+job.SessionID,
		fmt.Sprintf("WHISPERCLI_PARTIAL=%t", job.Partial),
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 && r.logger != nil {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("hook timed out after %s", r.Timeout)
		}
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs splits a configured command line with shell quoting rules.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}
