package vad

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/listener"
	"github.com/teslashibe/go-kira/pkg/robot"
	"github.com/teslashibe/go-kira/pkg/state"
	"github.com/teslashibe/go-kira/pkg/wav"
)

const faceTimeout = 5 * time.Second

// Detector segments microphone audio into utterances.
//
// Listeners run on the capture goroutine. They must return quickly and must
// not call Stop, MuteMic or Destroy synchronously.
type Detector struct {
	cfg    *Config
	logger *slog.Logger
	shared *state.Shared

	onStart *listener.Registry[struct{}]
	onEnd   *listener.Registry[Segment]

	// mu serializes lifecycle transitions.
	mu      sync.Mutex
	state   atomic.Int32
	source  audioio.Source
	cancel  context.CancelFunc
	done    chan struct{}
	faces   chan robot.Expression
	faceWG  sync.WaitGroup

	errMu   sync.Mutex
	lastErr error

	listening    atomic.Bool
	trackEnabled atomic.Bool

	// Capture-goroutine state.
	pad          [][]float32
	segment      []float32
	inSegment    bool
	realStarted  bool
	speechFrames int
	startedAt    time.Time
}

// New creates a detector. Nothing is acquired until Init or Start.
func New(opts ...Option) *Detector {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewRMS(DefaultRMSConfig())
	}
	if cfg.Shared == nil {
		cfg.Shared = state.New()
	}
	logger := cfg.Logger.With("component", "vad.detector")

	d := &Detector{
		cfg:     cfg,
		logger:  logger,
		shared:  cfg.Shared,
		onStart: listener.New[struct{}]("vad.speechStart", logger),
		onEnd:   listener.New[Segment]("vad.speechEnd", logger),
	}
	d.trackEnabled.Store(true)
	return d
}

// OnSpeechStart registers fn for the start of real speech.
func (d *Detector) OnSpeechStart(fn func()) listener.Cancel {
	return d.onStart.AddFunc(func(struct{}) { fn() })
}

// OnSpeechEnd registers fn for finished utterances.
func (d *Detector) OnSpeechEnd(fn func(Segment)) listener.Cancel {
	return d.onEnd.AddFunc(fn)
}

// State returns the lifecycle state.
func (d *Detector) State() State { return State(d.state.Load()) }

// IsListening reports whether an utterance is in progress.
func (d *Detector) IsListening() bool { return d.listening.Load() }

// Err returns the most recent device or classifier error.
func (d *Detector) Err() error {
	d.errMu.Lock()
	defer d.errMu.Unlock()
	return d.lastErr
}

// Init acquires the capture source. It is a no-op once ready.
func (d *Detector) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initLocked(ctx)
}

func (d *Detector) initLocked(ctx context.Context) error {
	switch d.State() {
	case StateReady, StateInitializing:
		return nil
	case StateDestroyed:
		return ErrDestroyed
	}
	if d.cfg.Source == nil {
		err := fmt.Errorf("%w: no source configured", ErrDeviceUnavailable)
		d.setErr(err)
		return err
	}

	d.state.Store(int32(StateInitializing))
	d.setErr(nil)

	src, err := d.cfg.Source(ctx)
	if err != nil {
		d.state.Store(int32(StateUninitialized))
		d.logger.Error("failed to open capture source", "error", err)
		err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		d.setErr(err)
		return err
	}
	d.source = src

	if d.cfg.Robot != nil {
		d.faces = make(chan robot.Expression, 8)
		d.faceWG.Add(1)
		go d.runFaces(d.faces)
	}

	d.state.Store(int32(StateReady))
	d.logger.Info("vad initialized", "source", src.Name(), "sample_rate", src.Config().SampleRate)
	return nil
}

// Start begins boundary detection, initializing first if needed.
func (d *Detector) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.initLocked(ctx); err != nil {
		return err
	}
	if d.cancel != nil {
		return nil
	}
	if err := d.source.Start(ctx); err != nil {
		d.logger.Error("failed to start capture", "error", err)
		err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		d.setErr(err)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	d.done = make(chan struct{})
	go d.capture(loopCtx, d.source, d.done)

	d.logger.Debug("vad started")
	return nil
}

// Stop pauses detection without releasing the source.
func (d *Detector) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

func (d *Detector) stopLocked() {
	if d.cancel != nil {
		d.cancel()
		<-d.done
		d.cancel = nil
		d.done = nil
	}
	if d.source != nil {
		if err := d.source.Stop(); err != nil {
			d.logger.Warn("failed to stop capture", "error", err)
		}
	}
	d.listening.Store(false)
}

// MuteMic discards captured audio, raises the shared mute flag and pauses
// detection.
func (d *Detector) MuteMic() {
	d.trackEnabled.Store(false)
	d.shared.SetMuted(true)
	d.listening.Store(false)
	d.Stop()
}

// UnmuteMic re-enables capture, clears the shared mute flag and resumes detection.
func (d *Detector) UnmuteMic(ctx context.Context) error {
	d.trackEnabled.Store(true)
	d.shared.SetMuted(false)
	return d.Start(ctx)
}

// Destroy stops detection, releases the source and clears every listener.
func (d *Detector) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State() == StateDestroyed {
		return
	}
	d.stopLocked()

	if d.source != nil {
		if err := d.source.Close(); err != nil {
			d.logger.Warn("failed to close capture source", "error", err)
		}
		d.source = nil
	}
	if d.faces != nil {
		close(d.faces)
		d.faceWG.Wait()
		d.faces = nil
	}

	d.onStart.Clear()
	d.onEnd.Clear()
	d.state.Store(int32(StateDestroyed))
	d.logger.Info("vad destroyed")
}

func (d *Detector) capture(ctx context.Context, src audioio.Source, done chan struct{}) {
	defer close(done)
	defer d.resetSegment()

	for {
		chunk, err := src.Read(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			d.setErr(fmt.Errorf("%w: %v", ErrDeviceUnavailable, err))
			d.logger.Error("capture read failed", "error", err)
			return
		}
		if !d.trackEnabled.Load() {
			continue
		}
		d.process(ctx, chunk)
	}
}

func (d *Detector) process(ctx context.Context, chunk audioio.AudioChunk) {
	samples := chunk.Samples
	if chunk.Channels == 2 {
		samples = audioio.StereoToMono(samples)
	}
	frame := audioio.Int16ToFloat32(samples)
	rate := chunk.SampleRate

	speech := d.cfg.Classifier.IsSpeech(frame)

	if !d.inSegment {
		if !speech {
			d.pushPad(frame)
			return
		}
		d.inSegment = true
		d.realStarted = false
		d.speechFrames = 0
		d.startedAt = time.Now()
		for _, p := range d.pad {
			d.segment = append(d.segment, p...)
		}
		d.pad = d.pad[:0]
	}

	d.segment = append(d.segment, frame...)

	if !speech {
		d.finishSegment(ctx, rate)
		return
	}

	d.speechFrames++
	if !d.realStarted && d.speechFrames >= d.cfg.MinSpeechFrames {
		d.realStarted = true
		d.speechRealStart(ctx)
	}
}

func (d *Detector) speechRealStart(ctx context.Context) {
	if d.cfg.Robot != nil {
		d.cfg.Robot.UnlockExpression()
		d.queueFace(robot.ExpressionExpecting)
	}
	d.listening.Store(true)
	d.logger.Debug("speech started")
	d.onStart.Notify(ctx, struct{}{})
}

func (d *Detector) finishSegment(ctx context.Context, rate int) {
	samples := d.segment
	started := d.startedAt
	confirmed := d.realStarted
	d.segment = nil
	d.inSegment = false
	d.realStarted = false
	d.speechFrames = 0

	if !confirmed {
		d.logger.Debug("speech misfire", "samples", len(samples))
		return
	}

	d.listening.Store(false)
	d.queueFace(robot.ExpressionQuestioning)

	data, err := wav.Encode(samples, rate)
	if err != nil {
		d.setErr(err)
		d.logger.Error("failed to encode speech segment", "error", err)
		return
	}

	seg := Segment{
		Samples:    samples,
		WAV:        data,
		SampleRate: rate,
		StartedAt:  started,
		EndedAt:    time.Now(),
	}
	d.logger.Debug("speech ended", "duration", seg.Duration())
	d.onEnd.Notify(ctx, seg)
}

func (d *Detector) pushPad(frame []float32) {
	n := d.cfg.PreSpeechPadFrames
	if n <= 0 {
		return
	}
	if len(d.pad) >= n {
		copy(d.pad, d.pad[1:])
		d.pad = d.pad[:n-1]
	}
	d.pad = append(d.pad, frame)
}

func (d *Detector) resetSegment() {
	d.segment = nil
	d.pad = nil
	d.inSegment = false
	d.realStarted = false
	d.speechFrames = 0
	d.cfg.Classifier.Reset()
}

func (d *Detector) setErr(err error) {
	d.errMu.Lock()
	d.lastErr = err
	d.errMu.Unlock()
}

// queueFace hands expr to the face worker without blocking capture.
func (d *Detector) queueFace(expr robot.Expression) {
	if d.faces == nil {
		return
	}
	select {
	case d.faces <- expr:
	default:
		d.logger.Warn("face queue full, dropping expression", "expression", expr)
	}
}

func (d *Detector) runFaces(faces <-chan robot.Expression) {
	defer d.faceWG.Done()
	for expr := range faces {
		ctx, cancel := context.WithTimeout(context.Background(), faceTimeout)
		if err := d.cfg.Robot.SetExpression(ctx, expr); err != nil {
			d.logger.Warn("failed to set expression", "expression", expr, "error", err)
		}
		cancel()
	}
}
