package control

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"whispercli/internal/config"
	"whispercli/internal/doctor"
	"whispercli/internal/history"
	"whispercli/internal/hook"
	"whispercli/internal/logging"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show the last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return tailFile(cmd.OutOrStdout(), cfg.Paths.LogPath, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			_, _ = fmt.Fprintln(w, l)
		}
	}
	return nil
}

// NewTestHookCmd triggers the output hook manually.
func NewTestHookCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-hook \"some text\"",
		Short: "Send sample text through output.hook_command",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if cfg.Output.HookCommand == "" {
				return fmt.Errorf("output.hook_command is not set in %s", cfg.Paths.ConfigPath)
			}
			logger, err := logging.Configure(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			timeout := time.Duration(cfg.Output.HookTimeoutSec * float64(time.Second))
			r := hook.NewRunner(cfg.Output.HookCommand, timeout, logger)
			job := hook.Job{Text: args[0], SessionID: uuid.NewString(), Timestamp: time.Now()}
			return r.Run(cmd.Context(), job)
		},
	}
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies, model cache and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cmd.Context(), cfg)
			printResults(cmd.OutOrStdout(), results)
			if n := doctor.Failed(results); n > 0 {
				return fmt.Errorf("doctor found %d issue(s)", n)
			}
			return nil
		},
	}
}

func printResults(w io.Writer, results []doctor.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, r := range results {
		status := "ok"
		if !r.Pass {
			status = "fail"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, status, r.Detail)
	}
	_ = tw.Flush()
}

// NewHistoryCmd lists recent runs.
func NewHistoryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent transcription runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := config.MustStatePaths(cfg); err != nil {
				return err
			}
			store, err := history.Open(cmd.Context(), cfg.Paths.HistoryPath)
			if err != nil {
				return err
			}
			defer store.Close()
			n, _ := cmd.Flags().GetInt("limit")
			runs, err := store.Recent(cmd.Context(), n)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(runs)
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}
	cmd.Flags().IntP("limit", "n", 20, "number of runs")
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "no runs recorded")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tMODE\tSTATE\tCHARS\tOUTPUT")
	for _, r := range runs {
		state := r.State
		if r.Partial {
			state += " (partial)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Mode, state, r.Chars, r.Output)
	}
	_ = tw.Flush()
}
