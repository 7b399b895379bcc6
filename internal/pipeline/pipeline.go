// Package pipeline drives one transcription run from preparation to persisted
// transcript, for file input or live capture.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"whispercli/internal/asr"
	"whispercli/internal/audio"
	"whispercli/internal/fault"
	"whispercli/internal/fsm"
	"whispercli/internal/history"
	"whispercli/internal/media"
	"whispercli/internal/metrics"
	"whispercli/internal/output"
	"whispercli/internal/stop"
	"whispercli/internal/transcript"
	"whispercli/internal/vad"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Mode is how audio reaches the engine.
type Mode string

const (
	ModeBatch  Mode = "batch"  // file input, normalized then transcribed
	ModeLive   Mode = "live"   // capture to a buffer, transcribe after stop
	ModeStream Mode = "stream" // capture, segment and transcribe concurrently
)

// Provisioner resolves a model id to a local file.
type Provisioner interface {
	Resolve(ctx context.Context, id string) (string, error)
}

// Normalizer converts input media into canonical PCM.
type Normalizer interface {
	Convert(ctx context.Context, path string) (*media.Audio, error)
}

// Guard is a held instance lock.
type Guard interface {
	Release() error
}

// Presenter shows a finished transcript to the user.
type Presenter interface {
	Present(ctx context.Context, p output.Presentation) []string
}

// Recorder stores run history.
type Recorder interface {
	Record(ctx context.Context, r history.Run) error
}

// Deps are the coordinator's collaborators. Lock, Presenter, History and
// Metrics are optional.
type Deps struct {
	Provisioner Provisioner
	Normalizer  Normalizer
	LoadEngine  asr.Loader
	Backend     audio.Backend
	NewSink     func(sessionID string) audio.Recording
	NewDetector func() (vad.Detector, error)
	Lock        func() (Guard, error)
	Presenter   Presenter
	History     Recorder
	Metrics     *metrics.Metrics
	Logger      *logrus.Logger
}

// Options are run-independent settings.
type Options struct {
	FrameMS       int
	QueueFrames   int
	KeepRecording bool
	Threads       int
	Formats       []string
	OutputDir     string // empty: next to the input, or the working directory for live runs
	Silence       time.Duration
	MinSpeech     time.Duration
	MaxSegment    time.Duration
	Now           func() time.Time
}

// Request is one run.
type Request struct {
	Input        string // empty means live capture
	Model        string
	Language     string
	DeviceIndex  int
	Stream       bool
	Stop         stop.Condition
	PollInterval time.Duration
}

// Mode derives the run mode.
func (r Request) Mode() Mode {
	switch {
	case r.Input != "":
		return ModeBatch
	case r.Stream:
		return ModeStream
	default:
		return ModeLive
	}
}

// Result is the complete outcome of one Run.
type Result struct {
	State       fsm.State
	SessionID   string
	Mode        Mode
	OutputPath  string
	OutputPaths []string
	Transcript  transcript.Transcript
	Capture     audio.Stats
	Warnings    []string
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Coordinator runs the state machine. One Coordinator serves one run at a time.
type Coordinator struct {
	deps Deps
	opts Options
	log  *logrus.Logger

	mu       sync.Mutex
	state    fsm.State
	observer func(fsm.State)
}

func NewCoordinator(deps Deps, opts Options) *Coordinator {
	log := deps.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(io.Discard)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FrameMS == 0 {
		opts.FrameMS = 20
	}
	return &Coordinator{deps: deps, opts: opts, log: log, state: fsm.StateIdle}
}

// Observe registers fn to be called on every state change.
func (c *Coordinator) Observe(fn func(fsm.State)) {
	c.mu.Lock()
	c.observer = fn
	c.mu.Unlock()
}

// State is the current state.
func (c *Coordinator) State() fsm.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Coordinator) fire(ev fsm.Event) {
	c.mu.Lock()
	next, err := fsm.Transition(c.state, ev)
	if err != nil {
		c.mu.Unlock()
		c.log.WithError(err).Error("pipeline state machine")
		return
	}
	prev := c.state
	c.state = next
	obs := c.observer
	c.mu.Unlock()
	c.log.Debugf("pipeline: %s -> %s", prev, next)
	if obs != nil {
		obs(next)
	}
}

// run carries per-run state through the stages.
type run struct {
	req    Request
	res    *Result
	agg    *transcript.Aggregator
	engine asr.Engine
	log    *logrus.Entry

	transcribing bool
	cancelled    bool

	mu sync.Mutex // guards res.Warnings; the stream transcriber warns concurrently
}

func (r *run) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	r.addWarnings(msg)
	r.log.Warn(msg)
}

func (r *run) addWarnings(ws ...string) {
	r.mu.Lock()
	r.res.Warnings = append(r.res.Warnings, ws...)
	r.mu.Unlock()
}

// Run executes one request. Every resource acquired (lock, device, engine,
// temporary files) is released before Run returns, including on cancellation
// and panics.
func (c *Coordinator) Run(ctx context.Context, req Request) (res Result) {
	c.mu.Lock()
	c.state = fsm.StateIdle
	c.mu.Unlock()

	res = Result{SessionID: uuid.NewString(), Mode: req.Mode(), StartedAt: c.opts.Now()}
	r := &run{
		req: req,
		res: &res,
		agg: transcript.NewAggregator(),
		log: c.log.WithFields(logrus.Fields{"session": res.SessionID, "mode": res.Mode}),
	}
	c.fire(fsm.EventStart)

	if c.deps.Lock != nil {
		guard, err := c.deps.Lock()
		if err != nil {
			c.fire(fsm.EventFail)
			res.State, res.Err, res.FinishedAt = c.State(), err, c.opts.Now()
			return res
		}
		defer func() {
			if err := guard.Release(); err != nil {
				r.warn("release lock: %v", err)
			}
		}()
	}
	defer c.finish(ctx, r)

	if err := c.prepare(ctx, r); err != nil {
		c.abort(ctx, r, err)
		return res
	}
	defer func() {
		if err := r.engine.Close(); err != nil {
			r.log.WithError(err).Debug("close engine")
		}
	}()

	var err error
	switch res.Mode {
	case ModeBatch:
		err = c.runBatch(ctx, r)
	case ModeLive:
		err = c.runLive(ctx, r)
	case ModeStream:
		err = c.runStream(ctx, r)
	}
	if err != nil && !r.transcribing {
		c.abort(ctx, r, err)
		return res
	}
	c.finalize(ctx, r, err)
	return res
}

func (c *Coordinator) prepare(ctx context.Context, r *run) error {
	r.log.WithField("model", r.req.Model).Info("preparing")
	path, err := c.deps.Provisioner.Resolve(ctx, r.req.Model)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	engine, err := c.deps.LoadEngine(path, asr.Options{Language: r.req.Language, Threads: c.opts.Threads})
	if err != nil {
		return err
	}
	r.engine = engine
	return nil
}

// abort ends a run that never reached transcription.
func (c *Coordinator) abort(ctx context.Context, r *run, err error) {
	if ctx.Err() != nil {
		r.log.Info("cancelled before transcription")
		c.fire(fsm.EventCancel)
		return
	}
	r.res.Err = err
	r.log.WithError(err).Error("run failed")
	c.fire(fsm.EventFail)
}

// transcribe feeds pcm through the engine into the aggregator, shifting
// segment times by offset. An engine fault is downgraded to a warning.
func (c *Coordinator) transcribe(ctx context.Context, r *run, pcm []float32, offset time.Duration) error {
	seq := r.engine.Process(ctx, pcm)
	if offset > 0 {
		seq = shifted(seq, offset)
	}
	err := r.agg.Consume(ctx, seq)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		r.cancelled = true
		return ctx.Err()
	default:
		r.warn("transcription halted: %v", err)
		return err
	}
}

func shifted(seq iter.Seq2[asr.Segment, error], off time.Duration) iter.Seq2[asr.Segment, error] {
	return func(yield func(asr.Segment, error) bool) {
		for seg, err := range seq {
			if err == nil {
				seg = asr.Shift(seg, off)
			}
			if !yield(seg, err) {
				return
			}
		}
	}
}

// finalize persists whatever was aggregated and presents it.
func (c *Coordinator) finalize(ctx context.Context, r *run, runErr error) {
	c.fire(fsm.EventExhausted)
	if runErr != nil && ctx.Err() != nil {
		r.cancelled = true
	}
	tr := r.agg.Finalize()
	r.res.Transcript = tr
	c.deps.Metrics.ObserveSegments(r.agg.Stats())

	base := c.outputBase(r)
	paths, err := transcript.WriteAll(base, tr, c.opts.Formats)
	r.res.OutputPaths = paths
	if len(paths) > 0 {
		r.res.OutputPath = paths[0]
	}
	if err != nil {
		r.res.Err = fmt.Errorf("%w: %v", fault.ErrIO, err)
		r.log.WithError(err).Error("persist transcript")
		c.fire(fsm.EventFail)
		return
	}
	fields := logrus.Fields{"output": r.res.OutputPath, "chars": len(tr.Text), "partial": tr.Partial}
	if r.cancelled {
		r.log.WithFields(fields).Warn("cancelled; partial transcript saved")
		c.fire(fsm.EventCancel)
		return
	}
	r.log.WithFields(fields).Info("transcript saved")
	c.fire(fsm.EventPersisted)

	if c.deps.Presenter != nil {
		r.addWarnings(c.deps.Presenter.Present(ctx, output.Presentation{
			Text: tr.Text, Path: r.res.OutputPath, SessionID: r.res.SessionID, Partial: tr.Partial,
		})...)
	}
}

func (c *Coordinator) outputBase(r *run) string {
	if r.req.Input != "" {
		base := strings.TrimSuffix(r.req.Input, filepath.Ext(r.req.Input))
		if c.opts.OutputDir != "" {
			base = filepath.Join(c.opts.OutputDir, filepath.Base(base))
		}
		return base
	}
	return filepath.Join(c.opts.OutputDir, "transcript-"+r.res.StartedAt.Format("20060102-150405"))
}

// finish records the run. It runs last, after the transcript is persisted.
func (c *Coordinator) finish(ctx context.Context, r *run) {
	r.res.State = c.State()
	r.res.FinishedAt = c.opts.Now()
	took := r.res.FinishedAt.Sub(r.res.StartedAt)

	if c.deps.History != nil {
		entry := history.Run{
			SessionID:  r.res.SessionID,
			Mode:       string(r.res.Mode),
			Input:      r.req.Input,
			Output:     r.res.OutputPath,
			Model:      r.req.Model,
			Language:   r.res.Transcript.Language,
			State:      string(r.res.State),
			Partial:    r.res.Transcript.Partial,
			Chars:      len(r.res.Transcript.Text),
			StartedAt:  r.res.StartedAt,
			FinishedAt: r.res.FinishedAt,
		}
		if r.res.Err != nil {
			entry.Error = r.res.Err.Error()
		}
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := c.deps.History.Record(hctx, entry); err != nil {
			r.warn("record history: %v", err)
		}
		cancel()
	}
	c.deps.Metrics.ObserveRun(string(r.res.State), took, len(r.res.Warnings))
	r.log.WithFields(logrus.Fields{"state": r.res.State, "took": took.Round(time.Millisecond)}).Info("run finished")
}

func (c *Coordinator) runBatch(ctx context.Context, r *run) error {
	c.fire(fsm.EventFile)
	r.log.WithField("input", r.req.Input).Info("converting")
	converted, err := c.deps.Normalizer.Convert(ctx, r.req.Input)
	if err != nil {
		return err
	}
	r.addWarnings(converted.Warnings...)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.fire(fsm.EventConverted)
	r.transcribing = true
	return c.transcribe(ctx, r, converted.Samples, 0)
}

func (c *Coordinator) startCapture(ctx context.Context, r *run, tap bool) (*audio.Session, audio.Recording, error) {
	c.fire(fsm.EventLive)
	rec := c.newSink(r.res.SessionID)
	sess := audio.NewSession(c.deps.Backend, rec, audio.SessionOptions{
		Format:      audio.Canonical(c.opts.FrameMS),
		QueueFrames: c.opts.QueueFrames,
		Tap:         tap,
		Logger:      c.log,
	})
	sess.ID = r.res.SessionID
	if err := sess.Start(ctx, r.req.DeviceIndex); err != nil {
		return nil, nil, err
	}
	return sess, rec, nil
}

func (c *Coordinator) newSink(id string) audio.Recording {
	if c.deps.NewSink != nil {
		return c.deps.NewSink(id)
	}
	return audio.NewMemorySink()
}

// waitForStop polls the stop condition until it fires or ctx ends.
func (c *Coordinator) waitForStop(ctx context.Context, r *run) {
	interval := r.req.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	cond := r.req.Stop
	if cond == nil {
		cond = stop.Predicate(func() bool { return false })
	}
	stop.Reset(cond)
	fired, polls := stop.Poll(ctx, cond, interval)
	r.log.WithFields(logrus.Fields{"fired": fired, "polls": polls}).Info("recording stop requested")
}

func (c *Coordinator) stopCapture(r *run, sess *audio.Session) {
	if err := sess.Stop(); err != nil {
		r.warn("capture: %v", err)
	}
	r.res.Capture = sess.Stats()
	c.deps.Metrics.ObserveCapture(r.res.Capture)
	if r.res.Capture.Dropped > 0 {
		r.warn("capture dropped %d of %d frames", r.res.Capture.Dropped, r.res.Capture.Captured)
	}
}

func (c *Coordinator) discard(r *run, rec audio.Recording) {
	if c.opts.KeepRecording {
		if loc := rec.Location(); loc != "" {
			r.log.WithField("recording", loc).Info("recording kept")
		}
		return
	}
	if err := rec.Remove(); err != nil {
		r.warn("%v: remove recording %s: %v", fault.ErrIO, rec.Location(), err)
	}
}

func (c *Coordinator) runLive(ctx context.Context, r *run) error {
	sess, rec, err := c.startCapture(ctx, r, false)
	if err != nil {
		return err
	}
	defer func() { _ = sess.Stop() }()

	c.waitForStop(ctx, r)
	c.stopCapture(r, sess)
	if ctx.Err() != nil {
		r.cancelled = true
		if loc := rec.Location(); loc != "" {
			r.warn("cancelled during capture; recording kept at %s", loc)
		}
		return ctx.Err()
	}
	defer c.discard(r, rec)

	pcm, err := rec.PCM()
	if err != nil {
		return fmt.Errorf("%w: read recording: %v", fault.ErrIO, err)
	}
	c.fire(fsm.EventStopped)
	r.transcribing = true
	r.log.WithField("seconds", float64(len(pcm))/audio.SampleRate).Info("transcribing recording")
	return c.transcribe(ctx, r, pcm, 0)
}

func (c *Coordinator) runStream(ctx context.Context, r *run) error {
	if c.deps.NewDetector == nil {
		return fmt.Errorf("%w: streaming needs a voice activity detector", fault.ErrConfiguration)
	}
	det, err := c.deps.NewDetector()
	if err != nil {
		return err
	}
	sess, rec, err := c.startCapture(ctx, r, true)
	if err != nil {
		return err
	}
	defer c.discard(r, rec)
	defer func() { _ = sess.Stop() }()

	// Capture, segmenter and transcriber run concurrently; chunks buffer a
	// handful of utterances before the segmenter blocks and frames drop.
	chunks := make(chan vad.Chunk, 8)
	seg := &vad.Segmenter{
		Detector:   det,
		Silence:    c.opts.Silence,
		MinSpeech:  c.opts.MinSpeech,
		MaxSegment: c.opts.MaxSegment,
		Logger:     c.log,
	}
	go func() {
		if err := seg.Run(ctx, sess.Frames(), chunks); err != nil && ctx.Err() == nil {
			r.log.WithError(err).Warn("segmenter stopped")
		}
	}()

	r.transcribing = true
	done := make(chan error, 1)
	go func() {
		var first error
		for chunk := range chunks {
			if first != nil {
				continue
			}
			r.log.WithFields(logrus.Fields{"start": chunk.Start, "len": chunk.Duration()}).Debug("transcribing chunk")
			first = c.transcribe(ctx, r, audio.ToFloat32(chunk.Samples), chunk.Start)
		}
		done <- first
	}()

	c.waitForStop(ctx, r)
	c.stopCapture(r, sess)
	c.fire(fsm.EventStopped)
	err = <-done
	if ctx.Err() != nil {
		r.cancelled = true
		return ctx.Err()
	}
	return err
}

// DefaultSinkFactory writes recordings as WAV files under dir.
func DefaultSinkFactory(dir string, now func() time.Time) func(string) audio.Recording {
	return func(id string) audio.Recording {
		name := fmt.Sprintf("recording-%s-%s.wav", now().Format("20060102-150405"), id[:8])
		return audio.NewWAVSink(filepath.Join(dir, name))
	}
}

// EnsureOutputDir creates dir when set.
func EnsureOutputDir(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: output dir %s: %v", fault.ErrConfiguration, dir, err)
	}
	return nil
}
