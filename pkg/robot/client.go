package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/teslashibe/go-kira/pkg/events"
	"github.com/teslashibe/go-kira/pkg/state"
)

// Client talks to the robot's HTTP API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	shared     *state.Shared
	events     EventSource
	autoHealth bool
	logger     *slog.Logger

	mu            sync.RWMutex
	healthy       bool
	healthLoading bool
	healthErr     error
}

// NewClient creates a robot client.
func NewClient(opts ...Option) *Client {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	shared := cfg.Shared
	if shared == nil {
		shared = state.New()
	}
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}

	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		httpClient: cfg.httpClient(),
		shared:     shared,
		events:     cfg.Events,
		autoHealth: cfg.AutoCheckHealth,
		logger:     cfg.Logger.With("component", "robot.client"),
	}
}

// BaseURL returns the normalized API base.
func (c *Client) BaseURL() string { return c.baseURL }

// Attach runs the initial health check when AutoCheckHealth is set.
func (c *Client) Attach(ctx context.Context) {
	if c.autoHealth {
		c.CheckHealth(ctx)
	}
}

// CheckHealth probes GET /health. The outcome is recorded in Healthy and
// HealthErr; it is never returned.
func (c *Client) CheckHealth(ctx context.Context) {
	c.mu.Lock()
	c.healthLoading = true
	c.healthErr = nil
	c.mu.Unlock()

	healthy, err := c.probeHealth(ctx)
	if err != nil {
		c.logger.Warn("robot health check failed", "error", err)
	}

	c.mu.Lock()
	c.healthy = healthy
	c.healthErr = err
	c.healthLoading = false
	c.mu.Unlock()
}

func (c *Client) probeHealth(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false, fmt.Errorf("robot: health check failed with status %d", resp.StatusCode)
	}
	return true, nil
}

// Healthy reports the result of the last health check.
func (c *Client) Healthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// HealthLoading reports whether a health check is in flight.
func (c *Client) HealthLoading() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthLoading
}

// HealthErr returns the error of the last health check, if any.
func (c *Client) HealthErr() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthErr
}

// ExpressionLocked reports whether face changes are currently suppressed.
func (c *Client) ExpressionLocked() bool { return c.shared.ExpressionLocked() }

// Dialog

// Speak makes the robot say text with its own voice. Empty text is a no-op.
func (c *Client) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	return c.postForm(ctx, "/api/dialog/speak", url.Values{"text": {text}})
}

// SpeakResult is the payload of an onSpeakComplete event.
type SpeakResult struct {
	Utterance string `json:"utterance"`
	ErrorCode string `json:"error_code"`
}

// SpeakAndWait speaks text and blocks until the robot reports it finished,
// bounded by the event client's await timeout.
func (c *Client) SpeakAndWait(ctx context.Context, text string) (SpeakResult, error) {
	if text == "" {
		return SpeakResult{}, nil
	}
	if c.events == nil {
		return SpeakResult{}, ErrNoEventStream
	}

	exp := c.events.Expect(events.TypeSpeakComplete, func(ev events.Event) bool {
		var r SpeakResult
		return ev.Decode(&r) == nil && r.Utterance == text
	})
	if err := c.Speak(ctx, text); err != nil {
		exp.Cancel()
		return SpeakResult{}, err
	}

	ev, err := exp.Wait(ctx)
	if err != nil {
		return SpeakResult{}, err
	}
	var r SpeakResult
	if err := ev.Decode(&r); err != nil {
		return SpeakResult{}, fmt.Errorf("robot: decode speak result: %w", err)
	}
	return r, nil
}

// StartSpeakAnimation animates the mouth. No-op while the expression is locked.
func (c *Client) StartSpeakAnimation(ctx context.Context) error {
	if c.shared.ExpressionLocked() {
		return nil
	}
	return c.postForm(ctx, "/api/dialog/start_speak_animation", nil)
}

// StopSpeak interrupts the robot's own speech.
func (c *Client) StopSpeak(ctx context.Context) error {
	return c.postForm(ctx, "/api/dialog/stop_speak", nil)
}

// SetVoiceTrigger toggles the robot's wake-word listener.
func (c *Client) SetVoiceTrigger(ctx context.Context, enable bool) error {
	return c.postForm(ctx, "/api/dialog/voice_trigger", url.Values{"enable": {strconv.FormatBool(enable)}})
}

// SetHeadAction toggles the press-on-head action.
func (c *Client) SetHeadAction(ctx context.Context, enable bool) error {
	return c.postForm(ctx, "/api/dialog/head_action", url.Values{"enable": {strconv.FormatBool(enable)}})
}

// Face

// SetExpression changes the face. No-op for an empty expression or while locked.
func (c *Client) SetExpression(ctx context.Context, expr Expression) error {
	if expr == "" || c.shared.ExpressionLocked() {
		return nil
	}
	return c.postExpression(ctx, expr)
}

// LockExpression takes the lock and, if expr is set, shows it regardless.
func (c *Client) LockExpression(ctx context.Context, expr Expression) error {
	c.shared.SetExpressionLocked(true)
	if expr == "" {
		return nil
	}
	c.logger.Debug("locking expression", "expression", expr)
	return c.postExpression(ctx, expr)
}

// UnlockExpression releases the lock. The face is left as it is.
func (c *Client) UnlockExpression() {
	c.logger.Debug("unlocking expression")
	c.shared.SetExpressionLocked(false)
}

func (c *Client) postExpression(ctx context.Context, expr Expression) error {
	return c.postForm(ctx, "/api/face/expression", url.Values{"expression": {string(expr)}})
}

// ExpressionAndSpeak shows expr while speaking text. Both are required.
func (c *Client) ExpressionAndSpeak(ctx context.Context, expr Expression, text string) error {
	if expr == "" || text == "" {
		return nil
	}
	return c.postForm(ctx, "/api/face/expression_and_speak", url.Values{
		"expression": {string(expr)},
		"text":       {text},
	})
}

// Utility

// PreviewOptions controls the camera preview while following or tracking.
// Nil fields are left to the robot's default.
type PreviewOptions struct {
	EnablePreview *bool
	LargePreview  *bool
}

// Bool returns a pointer to v, for PreviewOptions.
func Bool(v bool) *bool { return &v }

func (o PreviewOptions) values() url.Values {
	v := url.Values{}
	if o.EnablePreview != nil {
		v.Set("enablePreview", strconv.FormatBool(*o.EnablePreview))
	}
	if o.LargePreview != nil {
		v.Set("largePreview", strconv.FormatBool(*o.LargePreview))
	}
	return v
}

// FollowFace makes the robot follow the nearest face.
func (c *Client) FollowFace(ctx context.Context, opts PreviewOptions) error {
	return c.postForm(ctx, "/api/utility/follow_face", opts.values())
}

// FollowObject makes the robot follow the object in front of it.
func (c *Client) FollowObject(ctx context.Context) error {
	return c.postForm(ctx, "/api/utility/follow_object", nil)
}

// StopFollowing cancels FollowFace or FollowObject.
func (c *Client) StopFollowing(ctx context.Context) error {
	return c.postForm(ctx, "/api/utility/stop_following", nil)
}

// TrackFace keeps the head pointed at a face without driving.
func (c *Client) TrackFace(ctx context.Context, opts PreviewOptions) error {
	return c.postForm(ctx, "/api/utility/track_face", opts.values())
}

// LookAtUser turns toward a direction of arrival in degrees.
// Non-finite values are ignored.
func (c *Client) LookAtUser(ctx context.Context, doa float64) error {
	if math.IsNaN(doa) || math.IsInf(doa, 0) {
		return nil
	}
	return c.postForm(ctx, "/api/utility/look_at_user", url.Values{"doa": {strconv.FormatFloat(doa, 'f', -1, 64)}})
}

// PlayAction plays a canned body action by number.
func (c *Client) PlayAction(ctx context.Context, number int) error {
	return c.postForm(ctx, "/api/utility/play_action", url.Values{"number": {strconv.Itoa(number)}})
}

// PlayEmotionalAction plays an action paired with a face. The face is required.
func (c *Client) PlayEmotionalAction(ctx context.Context, face Expression, action int) error {
	if face == "" {
		return nil
	}
	return c.postForm(ctx, "/api/utility/play_emotional_action", url.Values{
		"face":   {string(face)},
		"action": {strconv.Itoa(action)},
	})
}

// StatusResponse is the {"status": "..."} body the utility queries return.
type StatusResponse struct {
	Status string `json:"status"`
}

// BlueLightFilterEnabled returns the filter state. It returns (nil, nil) when the body is not JSON.
func (c *Client) BlueLightFilterEnabled(ctx context.Context) (*StatusResponse, error) {
	return getJSON[StatusResponse](ctx, c, "/api/utility/get_blue_light_filter_enable")
}

// BlueLightFilterMode returns the filter mode. It returns (nil, nil) when the body is not JSON.
func (c *Client) BlueLightFilterMode(ctx context.Context) (*StatusResponse, error) {
	return getJSON[StatusResponse](ctx, c, "/api/utility/get_blue_light_filter_mode")
}

// SetBlueLightFilterMode sets the filter mode. Empty mode is a no-op.
func (c *Client) SetBlueLightFilterMode(ctx context.Context, mode string) error {
	if mode == "" {
		return nil
	}
	return c.postForm(ctx, "/api/utility/set_blue_light_filter_mode", url.Values{"mode": {mode}})
}

// postForm sends a form-encoded POST. Non-2xx answers become *CommandError.
func (c *Client) postForm(ctx context.Context, path string, data url.Values) error {
	if data == nil {
		data = url.Values{}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(data.Encode()))
	if err != nil {
		return fmt.Errorf("robot: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("robot: %s: %w", path, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &CommandError{Path: path, Status: resp.StatusCode}
	}
	return nil
}

// getJSON fetches path and decodes it into T. A body that is not valid JSON
// yields (nil, nil).
func getJSON[T any](ctx context.Context, c *Client, path string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("robot: build %s: %w", path, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("robot: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &CommandError{Path: path, Status: resp.StatusCode}
	}

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		var syn *json.SyntaxError
		var typ *json.UnmarshalTypeError
		if errors.As(err, &syn) || errors.As(err, &typ) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			c.logger.Debug("robot: non-JSON body", "path", path, "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("robot: read %s: %w", path, err)
	}
	return &v, nil
}
