package main

import (
	"fmt"
	"os"

	"whispercli/internal/control"
	"whispercli/internal/fault"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	root := control.NewRootCmd(version)
	applyColorHelp(root)
	err := root.Execute()
	code := fault.ExitCode(err)
	if code != 0 {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return code
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%swhispercli%s: local speech-to-text %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sTranscribes a file, or the microphone until you press the stop key.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  whispercli [input] [flags]\n")
		write("  whispercli [command]\n\n")

		write("%sFlags%s\n", bold, reset)
		write("%s", cmd.LocalFlags().FlagUsages())
		writeln("")

		write("%sEnv%s\n", bold, reset)
		writeln("  WHISPERCLI_MODEL, WHISPERCLI_LANGUAGE, WHISPERCLI_METRICS_ADDR,")
		writeln("  WHISPERCLI_LOG_LEVEL, WHISPERCLI_LOG_FORMAT, WHISPERCLI_LOCK_ENABLED,")
		writeln("  WHISPERCLI_HISTORY_ENABLED")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln(cmd.Example)
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden || !c.IsAvailableCommand() {
				continue
			}
			write("  %s%-12s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
