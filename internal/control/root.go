package control

import (
	"fmt"
	"time"

	"whispercli/internal/fault"

	"github.com/spf13/cobra"
)

// runFlags are the transcription flags on the root command. They override the
// config file and WHISPERCLI_* environment when set.
type runFlags struct {
	model       string
	device      int
	stopKey     string
	open        bool
	clipboard   bool
	delay       int
	lockfile    bool
	verbose     bool
	language    string
	stream      bool
	formats     []string
	outputDir   string
	stopFile    string
	maxDuration time.Duration
	metricsAddr string
	keep        bool
}

// NewRootCmd builds the whispercli command tree. The root command itself
// transcribes a file, or the microphone when no input is given.
func NewRootCmd(version string) *cobra.Command {
	flags := &runFlags{}
	var cfgPath *string
	root := &cobra.Command{
		Use:   "whispercli [input]",
		Short: "Local speech-to-text for files and the microphone",
		Long: `whispercli transcribes an audio or video file, or records from a microphone until the
stop key is pressed, using whisper.cpp locally. The transcript is written next to the input
(or as transcript-<timestamp>.txt for recordings) and copied to the clipboard.`,
		Example: `  whispercli interview.mp3
  whispercli -m small -l en talk.mp4 --format txt,srt
  whispercli -i 1 -s enter --open-results
  whispercli --stream --max-duration 5m`,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.MaximumNArgs(1)(cmd, args); err != nil {
				return fmt.Errorf("%w: %v", fault.ErrConfiguration, err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranscribe(cmd, *cfgPath, flags, args)
		},
	}
	root.Version = version
	root.SetVersionTemplate("whispercli v{{.Version}}\n")
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", fault.ErrConfiguration, err)
	})

	cfgPath = root.PersistentFlags().String("config", "", "Path to config file (TOML). Defaults to ~/.config/whispercli/config.toml")

	flags.register(root)

	root.AddCommand(NewMicCmd(cfgPath))
	root.AddCommand(NewModelsCmd(cfgPath))
	root.AddCommand(NewSetupCmd(cfgPath))
	root.AddCommand(NewDoctorCmd(cfgPath))
	root.AddCommand(NewHistoryCmd(cfgPath))
	root.AddCommand(NewTailLogCmd(cfgPath))
	root.AddCommand(NewTestHookCmd(cfgPath))
	root.AddCommand(NewConfigCmd(cfgPath))
	return root
}

func (r *runFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVarP(&r.model, "model", "m", "", "Model id (tiny, base, small, medium, large-v1, large-v2, large-v3, large-v3-turbo) or path to a ggml file")
	f.IntVarP(&r.device, "microphone-index", "i", 0, "Index of the microphone to record from (see: whispercli mic list)")
	f.StringVarP(&r.stopKey, "stop-key", "s", "", "Key that stops recording: space, enter, esc, tab or a single character")
	f.BoolVarP(&r.open, "open-results", "o", false, "Open the transcript file when done")
	f.BoolVarP(&r.clipboard, "copy-to-clipboard", "c", true, "Copy the transcript to the clipboard")
	f.IntVarP(&r.delay, "delay-seconds", "d", 10, "Seconds to wait after transcription before exiting")
	f.BoolVar(&r.lockfile, "lockfile", true, "Refuse to run while another instance holds the lock file")
	f.BoolVarP(&r.verbose, "verbose", "v", false, "Debug logging")
	f.StringVarP(&r.language, "language", "l", "", `Spoken language code, or "auto"`)
	f.BoolVar(&r.stream, "stream", false, "Transcribe speech segments while still recording")
	f.StringSliceVar(&r.formats, "format", nil, "Transcript formats: txt, srt, vtt")
	f.StringVar(&r.outputDir, "output", "", "Directory for transcript files")
	f.StringVar(&r.stopFile, "stop-file", "", "Stop recording when this file appears")
	f.DurationVar(&r.maxDuration, "max-duration", 0, "Stop recording after this long")
	f.StringVar(&r.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address during the run")
	f.BoolVar(&r.keep, "keep-recording", false, "Keep the recorded WAV after transcription")
}
