package robot

import (
	"context"

	"github.com/teslashibe/go-kira/pkg/events"
)

// ExpressionController is what the voice pipeline needs from the robot:
// face changes and the speaking animation, all subject to the lock.
// Use this minimal interface in components that only touch the face.
type ExpressionController interface {
	SetExpression(ctx context.Context, expr Expression) error
	LockExpression(ctx context.Context, expr Expression) error
	UnlockExpression()
	StartSpeakAnimation(ctx context.Context) error
}

// DialogController covers the robot's own speech and voice trigger.
type DialogController interface {
	Speak(ctx context.Context, text string) error
	StopSpeak(ctx context.Context) error
	SetVoiceTrigger(ctx context.Context, enable bool) error
	SetHeadAction(ctx context.Context, enable bool) error
}

// MotionController covers following, tracking and canned actions.
type MotionController interface {
	FollowFace(ctx context.Context, opts PreviewOptions) error
	FollowObject(ctx context.Context) error
	StopFollowing(ctx context.Context) error
	TrackFace(ctx context.Context, opts PreviewOptions) error
	LookAtUser(ctx context.Context, doa float64) error
	PlayAction(ctx context.Context, number int) error
	PlayEmotionalAction(ctx context.Context, face Expression, action int) error
}

// StatusController covers health and device queries.
type StatusController interface {
	CheckHealth(ctx context.Context)
	Healthy() bool
	Battery(ctx context.Context) (*Battery, error)
}

// Controller is the composite of every capability.
type Controller interface {
	ExpressionController
	DialogController
	MotionController
	StatusController
}

// EventSource is the part of events.Client SpeakAndWait needs.
type EventSource interface {
	Expect(eventType string, match func(events.Event) bool) *events.Expectation
}

var (
	_ Controller           = (*Client)(nil)
	_ ExpressionController = (*Mock)(nil)
	_ EventSource          = (*events.Client)(nil)
)
