package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-kira/pkg/audioio"
	"github.com/teslashibe/go-kira/pkg/listener"
	"github.com/teslashibe/go-kira/pkg/robot"
)

// Controller plays one utterance at a time.
type Controller struct {
	cfg    *Config
	logger *slog.Logger

	onStart *listener.Registry[string]
	onEnd   *listener.Registry[string]
	onError *listener.Registry[error]

	speaking atomic.Bool

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	lastErr error

	wg sync.WaitGroup
}

// New creates a controller.
func New(opts ...Option) *Controller {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	logger := cfg.Logger.With("component", "speech.controller")

	return &Controller{
		cfg:     cfg,
		logger:  logger,
		onStart: listener.New[string]("speech.speakStart", logger),
		onEnd:   listener.New[string]("speech.speakEnd", logger),
		onError: listener.New[error]("speech.speakError", logger),
	}
}

// OnSpeakStart registers fn, called with the text before synthesis.
func (c *Controller) OnSpeakStart(fn func(text string)) listener.Cancel {
	return c.onStart.AddFunc(fn)
}

// OnSpeakEnd registers fn, called when an utterance finishes playing.
// Stopped or superseded utterances never fire it.
func (c *Controller) OnSpeakEnd(fn func(text string)) listener.Cancel {
	return c.onEnd.AddFunc(fn)
}

// OnSpeakError registers fn, called when synthesis or playback of the
// current utterance fails. Exactly one of OnSpeakEnd and OnSpeakError fires
// for an utterance that is neither stopped nor superseded.
func (c *Controller) OnSpeakError(fn func(err error)) listener.Cancel {
	return c.onError.AddFunc(fn)
}

// IsSpeaking reports whether an utterance is being synthesized or played.
func (c *Controller) IsSpeaking() bool { return c.speaking.Load() }

// Err returns the last synthesis or playback error.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Speak synthesizes text and starts playback. It returns once playback has
// begun; completion is reported through OnSpeakEnd. A cancelled ctx drops
// the utterance before it starts; once started, only Stop or a newer Speak
// interrupts it.
func (c *Controller) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if c.cfg.Provider == nil {
		c.logger.Warn("no TTS provider configured, cannot speak")
		return nil
	}

	c.mu.Lock()
	if ctx.Err() != nil {
		c.mu.Unlock()
		return nil
	}
	c.abandonLocked()
	c.gen++
	gen := c.gen
	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.lastErr = nil
	c.speaking.Store(true)
	c.mu.Unlock()

	c.onStart.Notify(ctx, text)

	res, err := c.cfg.Provider.Synthesize(playCtx, text)
	if err != nil {
		return c.fail(gen, fmt.Errorf("%w: %w", ErrSynthesisFailed, err))
	}
	if !c.current(gen) {
		return nil
	}

	c.talkingFace(ctx)

	samples, rate, err := Decode(res)
	if err != nil {
		return c.fail(gen, fmt.Errorf("%w: %w", ErrPlaybackFailed, err))
	}
	if c.cfg.Sink == nil {
		return c.fail(gen, fmt.Errorf("%w: no audio sink", ErrPlaybackFailed))
	}
	if err := c.cfg.Sink.Start(playCtx); err != nil {
		return c.fail(gen, fmt.Errorf("%w: %w", ErrPlaybackFailed, err))
	}

	c.logger.Debug("playing", "chars", len(text), "samples", len(samples), "rate", rate)

	c.wg.Add(1)
	go c.play(playCtx, gen, text, samples, rate)
	return nil
}

// Stop halts playback immediately. OnSpeakEnd does not fire.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abandonLocked()
	c.gen++
	c.speaking.Store(false)
}

// Wait blocks until every playback goroutine has exited.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// Close stops playback and releases the sink and provider.
func (c *Controller) Close() error {
	c.Stop()
	c.wg.Wait()
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.Close(); err != nil {
			c.logger.Warn("failed to close sink", "error", err)
		}
	}
	if c.cfg.Provider != nil {
		return c.cfg.Provider.Close()
	}
	return nil
}

func (c *Controller) abandonLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	if c.cfg.Sink != nil {
		if err := c.cfg.Sink.Clear(); err != nil {
			c.logger.Warn("failed to clear sink", "error", err)
		}
	}
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen
}

// fail records err and notifies OnSpeakError if gen is still current.
// Errors of abandoned utterances are dropped.
func (c *Controller) fail(gen uint64, err error) error {
	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return nil
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.lastErr = err
	c.speaking.Store(false)
	c.mu.Unlock()

	c.logger.Error("speech failed", "error", err)
	c.onError.Notify(context.Background(), err)
	return err
}

// finish clears speaking if gen is still current and reports whether it was.
func (c *Controller) finish(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.speaking.Store(false)
	return true
}

func (c *Controller) talkingFace(ctx context.Context) {
	if c.cfg.Robot == nil {
		return
	}
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.RobotTimeout)
	defer cancel()
	if err := c.cfg.Robot.SetExpression(fctx, robot.ExpressionDefault); err != nil {
		c.logger.Warn("failed to set expression", "error", err)
	}
	if err := c.cfg.Robot.StartSpeakAnimation(fctx); err != nil {
		c.logger.Warn("failed to start speak animation", "error", err)
	}
}

func (c *Controller) play(ctx context.Context, gen uint64, text string, samples []int16, rate int) {
	defer c.wg.Done()

	sinkCfg := c.cfg.Sink.Config()
	if sinkCfg.SampleRate > 0 && rate != sinkCfg.SampleRate {
		samples = audioio.Resample(samples, rate, sinkCfg.SampleRate)
		rate = sinkCfg.SampleRate
	}

	frames := sinkCfg.BufferSize()
	if frames <= 0 {
		frames = rate / 50
	}

	for off := 0; off < len(samples); off += frames {
		if ctx.Err() != nil {
			return
		}
		end := min(off+frames, len(samples))
		chunk := audioio.AudioChunk{Samples: samples[off:end], SampleRate: rate, Channels: 1}
		if err := c.cfg.Sink.Write(ctx, chunk); err != nil {
			if ctx.Err() == nil {
				c.fail(gen, fmt.Errorf("%w: %w", ErrPlaybackFailed, err))
			}
			return
		}
	}

	if err := c.cfg.Sink.Flush(ctx); err != nil {
		if ctx.Err() == nil {
			c.fail(gen, fmt.Errorf("%w: %w", ErrPlaybackFailed, err))
		}
		return
	}

	if !c.finish(gen) {
		return
	}
	c.logger.Debug("finished speaking", "chars", len(text))
	c.onEnd.Notify(context.Background(), text)
}
