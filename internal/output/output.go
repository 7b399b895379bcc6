// Package output presents a finished transcript: clipboard, open, notify, hook.
// Every failure here is reported as a warning; the transcript file is already
// on disk when presentation starts.
package output

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"whispercli/internal/hook"

	"github.com/atotto/clipboard"
	"github.com/gen2brain/beeep"
	"github.com/sirupsen/logrus"
)

// Options selects which side effects run.
type Options struct {
	Clipboard        bool
	ClipboardCommand string // overrides the system clipboard, receives text on stdin
	Open             bool
	OpenCommand      string // receives the file path as its last argument
	Notify           bool
	HookCommand      string
	HookTimeout      time.Duration
}

// Presentation is what gets presented.
type Presentation struct {
	Text      string
	Path      string
	SessionID string
	Partial   bool
}

// Presenter applies the configured side effects.
type Presenter struct {
	opts   Options
	logger *logrus.Logger

	copy   func(ctx context.Context, text string) error
	open   func(ctx context.Context, path string) error
	notify func(title, message string) error
	hook   func(ctx context.Context, job hook.Job) error
}

func NewPresenter(opts Options, logger *logrus.Logger) *Presenter {
	p := &Presenter{opts: opts, logger: logger}
	p.copy = p.copyText
	p.open = p.openPath
	p.notify = func(title, message string) error { return beeep.Notify(title, message, "") }
	if strings.TrimSpace(opts.HookCommand) != "" {
		p.hook = hook.NewRunner(opts.HookCommand, opts.HookTimeout, logger).Run
	}
	return p
}

// Present runs each enabled side effect and returns the failures as warnings.
func (p *Presenter) Present(ctx context.Context, pr Presentation) []string {
	var warnings []string
	warn := func(what string, err error) {
		msg := fmt.Sprintf("%s: %v", what, err)
		warnings = append(warnings, msg)
		p.logger.Warn(msg)
	}

	if p.opts.Clipboard && pr.Text != "" {
		if err := p.copy(ctx, pr.Text); err != nil {
			warn("copy to clipboard", err)
		} else {
			p.logger.Info("transcript copied to clipboard")
		}
	}
	if p.opts.Open && pr.Path != "" {
		if err := p.open(ctx, pr.Path); err != nil {
			warn("open "+pr.Path, err)
		}
	}
	if p.opts.Notify {
		msg := "Transcript saved to " + pr.Path
		if pr.Partial {
			msg = "Partial transcript saved to " + pr.Path
		}
		if err := p.notify("whispercli", msg); err != nil {
			warn("notify", err)
		}
	}
	if p.hook != nil {
		job := hook.Job{Text: pr.Text, OutputPath: pr.Path, SessionID: pr.SessionID, Partial: pr.Partial, Timestamp: time.Now()}
		if err := p.hook(ctx, job); err != nil {
			warn("hook", err)
		}
	}
	return warnings
}

func (p *Presenter) copyText(ctx context.Context, text string) error {
	if strings.TrimSpace(p.opts.ClipboardCommand) == "" {
		return clipboard.WriteAll(text)
	}
	argv, err := hook.ParseArgs(p.opts.ClipboardCommand)
	if err != nil {
		return err
	}
	cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return runCommandWithInput(cctx, argv, text)
}

func (p *Presenter) openPath(_ context.Context, path string) error {
	argv, err := openArgv(p.opts.OpenCommand, runtime.GOOS)
	if err != nil {
		return err
	}
	argv = append(argv, path)
	cmd := exec.Command(argv[0], argv[1:]...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", argv[0], err)
	}
	// the viewer outlives us; only reap it
	go func() { _ = cmd.Wait() }()
	return nil
}

func openArgv(custom, goos string) ([]string, error) {
	if strings.TrimSpace(custom) != "" {
		return hook.ParseArgs(custom)
	}
	switch goos {
	case "darwin":
		return []string{"open"}, nil
	case "windows":
		return []string{"cmd", "/c", "start", ""}, nil
	default:
		return []string{"xdg-open"}, nil
	}
}

// runCommandWithInput executes argv and writes input to stdin.
func runCommandWithInput(ctx context.Context, argv []string, input string) error {
	if len(argv) == 0 {
		return fmt.Errorf("command argv cannot be empty")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = strings.NewReader(input)
	if out, err := cmd.CombinedOutput(); err != nil {
		detail := strings.TrimSpace(string(out))
		if detail != "" {
			return fmt.Errorf("%s: %w: %s", argv[0], err, detail)
		}
		return fmt.Errorf("%s: %w", argv[0], err)
	}
	return nil
}
