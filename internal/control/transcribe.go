package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whispercli/internal/asr"
	"whispercli/internal/audio"
	"whispercli/internal/config"
	"whispercli/internal/fault"
	"whispercli/internal/fsm"
	"whispercli/internal/history"
	"whispercli/internal/lock"
	"whispercli/internal/logging"
	"whispercli/internal/media"
	"whispercli/internal/metrics"
	"whispercli/internal/models"
	"whispercli/internal/output"
	"whispercli/internal/pipeline"
	"whispercli/internal/stop"
	"whispercli/internal/vad"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// applyFlags copies explicitly set flags over cfg.
func applyFlags(cmd *cobra.Command, cfg *config.Config, f *runFlags) {
	changed := cmd.Flags().Changed
	if changed("model") {
		cfg.ASR.Model = f.model
	}
	if changed("microphone-index") {
		cfg.Audio.DeviceIndex = f.device
	}
	if changed("stop-key") {
		cfg.Stop.Key = f.stopKey
	}
	if changed("open-results") {
		cfg.Output.Open = f.open
	}
	if changed("copy-to-clipboard") {
		cfg.Output.Clipboard = f.clipboard
	}
	if changed("delay-seconds") {
		cfg.Output.DelaySec = f.delay
	}
	if changed("lockfile") {
		cfg.Lock.Enabled = f.lockfile
	}
	if changed("language") {
		cfg.ASR.Language = f.language
	}
	if changed("format") {
		cfg.Output.Formats = f.formats
	}
	if changed("output") {
		cfg.Output.Dir = f.outputDir
	}
	if changed("stop-file") {
		cfg.Stop.File = f.stopFile
	}
	if changed("max-duration") {
		cfg.Stop.MaxDurationSec = f.maxDuration.Seconds()
	}
	if changed("metrics-addr") {
		cfg.Metrics.Addr = f.metricsAddr
		cfg.Metrics.Enabled = f.metricsAddr != ""
	}
	if changed("keep-recording") {
		cfg.Audio.KeepRecording = f.keep
	}
}

func runTranscribe(cmd *cobra.Command, cfgPath string, f *runFlags, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg, f)
	if err := cfg.Validate(); err != nil {
		return err
	}
	input := ""
	if len(args) == 1 {
		input = args[0]
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	console := &logging.CRLFWriter{W: cmd.ErrOrStderr()}
	var keys *stop.KeyReader
	if input == "" {
		// Raw mode turns Ctrl-C into a byte; route it to the same cancellation as SIGINT.
		keys, err = stop.OpenTerminal(os.Stdin, cancel)
		if err != nil {
			return fmt.Errorf("%w: %v", fault.ErrDevice, err)
		}
		defer keys.Close()
		console.Raw = keys.Raw
	}
	logger, err := logging.Configure(cfg, console)
	if err != nil {
		return err
	}
	if f.verbose {
		logging.Verbose(logger)
	}

	held, err := acquireInstance(cfg, logger)
	if errors.Is(err, fault.ErrAlreadyRunning) {
		logger.WithError(err).Info("another whispercli instance is running; nothing to do")
		return nil
	}
	if err != nil {
		return err
	}
	if held != nil {
		defer func() { _ = held.Release() }()
	}

	m := metrics.New()
	if cfg.Metrics.Enabled {
		if err := m.Serve(ctx, cfg.Metrics.Addr, logger); err != nil {
			logger.WithError(err).Warn("metrics disabled")
		}
	}

	deps, closeDeps, err := buildDeps(ctx, cfg, logger, m, held)
	if err != nil {
		return err
	}
	defer closeDeps()

	req := pipeline.Request{
		Input:        input,
		Model:        cfg.ASR.Model,
		Language:     cfg.ASR.Language,
		DeviceIndex:  cfg.Audio.DeviceIndex,
		Stream:       f.stream,
		PollInterval: time.Duration(cfg.Stop.PollMS) * time.Millisecond,
	}
	if input == "" {
		cond, release, err := stopCondition(ctx, cfg, keys, logger)
		if err != nil {
			return err
		}
		defer release()
		req.Stop = cond
		logger.Infof("recording; press %s to stop", cfg.Stop.Key)
	}

	coord := pipeline.NewCoordinator(deps, coordinatorOptions(cfg))
	res := coord.Run(ctx, req)
	if keys != nil {
		_ = keys.Close()
	}

	if res.Err != nil {
		return res.Err
	}
	report(cmd.OutOrStdout(), res)
	if res.State == fsm.StateDone {
		wait(ctx, time.Duration(cfg.Output.DelaySec)*time.Second)
	}
	return nil
}

func coordinatorOptions(cfg *config.Config) pipeline.Options {
	return pipeline.Options{
		FrameMS:       cfg.Audio.FrameMS,
		QueueFrames:   cfg.Audio.QueueFrames,
		KeepRecording: cfg.Audio.KeepRecording,
		Threads:       cfg.ASR.Threads,
		Formats:       cfg.Output.Formats,
		OutputDir:     cfg.Output.Dir,
		Silence:       time.Duration(cfg.VAD.SilenceMS) * time.Millisecond,
		MinSpeech:     time.Duration(cfg.VAD.MinSpeechMS) * time.Millisecond,
		MaxSegment:    time.Duration(cfg.VAD.MaxSegmentMS) * time.Millisecond,
	}
}

// acquireInstance takes the instance lock when enabled. It runs before the
// metrics listener and history store are opened so a second instance touches
// neither. A nil guard means locking is off.
func acquireInstance(cfg *config.Config, logger *logrus.Logger) (pipeline.Guard, error) {
	if !cfg.Lock.Enabled {
		return nil, nil
	}
	g, err := lock.Acquire(cfg.Lock.Path, cfg.Lock.ReclaimStale)
	if err != nil {
		return nil, err
	}
	logger.WithField("lock", g.Path()).Debug("instance lock acquired")
	return g, nil
}

// buildDeps wires the production collaborators. held is the instance lock
// already taken by the caller, handed to the coordinator as its guard. The
// returned func closes whatever was opened.
func buildDeps(ctx context.Context, cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics, held pipeline.Guard) (pipeline.Deps, func(), error) {
	if err := pipeline.EnsureOutputDir(cfg.Output.Dir); err != nil {
		return pipeline.Deps{}, nil, err
	}
	backend, err := audio.NewBackend(cfg.Audio.Backend)
	if err != nil {
		return pipeline.Deps{}, nil, err
	}
	deps := pipeline.Deps{
		Provisioner: &models.Cache{
			Dir:     cfg.Models.Dir,
			BaseURL: cfg.Models.BaseURL,
			Timeout: time.Duration(cfg.Models.DownloadTimeoutSec) * time.Second,
			Log:     logger,
		},
		Normalizer: &media.FFmpeg{Path: cfg.Media.FFmpegPath, TempDir: os.TempDir(), Log: logger},
		LoadEngine: asr.Load,
		Backend:    backend,
		NewDetector: func() (vad.Detector, error) {
			return vad.New(cfg.VAD.Mode, cfg.VAD.Aggressiveness, cfg.VAD.EnergyThresh)
		},
		Presenter: output.NewPresenter(output.Options{
			Clipboard:        cfg.Output.Clipboard,
			ClipboardCommand: cfg.Output.ClipboardCommand,
			Open:             cfg.Output.Open,
			OpenCommand:      cfg.Output.OpenCommand,
			Notify:           cfg.Output.Notify,
			HookCommand:      cfg.Output.HookCommand,
			HookTimeout:      time.Duration(cfg.Output.HookTimeoutSec * float64(time.Second)),
		}, logger),
		Metrics: m,
		Logger:  logger,
	}
	if cfg.Audio.Sink == "memory" {
		deps.NewSink = func(string) audio.Recording { return audio.NewMemorySink() }
	} else {
		deps.NewSink = pipeline.DefaultSinkFactory(cfg.Paths.RecordingsDir, time.Now)
	}
	if held != nil {
		deps.Lock = func() (pipeline.Guard, error) { return held, nil }
	}

	closeFn := func() {}
	if cfg.History.Enabled {
		store, err := history.Open(ctx, cfg.Paths.HistoryPath)
		if err != nil {
			logger.WithError(err).Warn("run history disabled")
		} else {
			deps.History = store
			closeFn = func() {
				if err := store.Close(); err != nil {
					logger.WithError(err).Debug("close history")
				}
			}
		}
	}
	return deps, closeFn, nil
}

// stopCondition combines every configured way of ending a recording.
func stopCondition(ctx context.Context, cfg *config.Config, keys *stop.KeyReader, logger *logrus.Logger) (stop.Condition, func(), error) {
	key, err := stop.ParseKey(cfg.Stop.Key)
	if err != nil {
		return nil, nil, err
	}
	token, releaseToken := stopToken(ctx)
	conds := []stop.Condition{stop.KeyPress(keys, key), stop.Cancellation(token)}
	release := releaseToken
	if cfg.Stop.File != "" {
		watch, err := stop.FileAppears(cfg.Stop.File, logger)
		if err != nil {
			releaseToken()
			return nil, nil, fmt.Errorf("%w: stop file: %v", fault.ErrConfiguration, err)
		}
		conds = append(conds, watch)
		release = func() {
			_ = watch.Close()
			releaseToken()
		}
	}
	if cfg.Stop.MaxDurationSec > 0 {
		conds = append(conds, stop.After(time.Duration(cfg.Stop.MaxDurationSec*float64(time.Second))))
	}
	return stop.Any(conds...), release, nil
}

func report(w io.Writer, res pipeline.Result) {
	switch {
	case res.OutputPath == "":
		_, _ = fmt.Fprintf(w, "%s: no transcript written\n", res.State)
	case res.Transcript.Partial:
		_, _ = fmt.Fprintf(w, "%s (partial)\n", res.OutputPath)
	default:
		_, _ = fmt.Fprintln(w, res.OutputPath)
	}
	for _, warn := range res.Warnings {
		_, _ = fmt.Fprintf(w, "warning: %s\n", warn)
	}
}

func wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
