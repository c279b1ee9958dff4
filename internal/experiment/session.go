// Package experiment sequences one participant's session: it walks the trial
// plan, drives the playback loop for each stimulus, collects responses and
// makes every completed trial durable before the next one starts.
package experiment

import (
	"context"
	"time"

	"github.com/satindergrewal/tonalstudy/internal/config"
	"github.com/satindergrewal/tonalstudy/internal/playback"
	"github.com/satindergrewal/tonalstudy/internal/sessionlog"
	"github.com/satindergrewal/tonalstudy/internal/stimulus"
)

// Surface is the participant-facing screen. Every blocking call returns
// ctx.Err() once the session is cancelled.
type Surface interface {
	// ShowMessage blocks until any key or click.
	ShowMessage(ctx context.Context, text string) error
	TextInput(ctx context.Context, prompt string) (string, error)
	MultipleChoice(ctx context.Context, prompt string, options []string) (string, error)
	// Progress renders playback progress and should return promptly.
	Progress(p playback.Progress)
	Close() error
}

// Runner plays one trial. *playback.Loop implements it.
type Runner interface {
	Run(ctx context.Context, tr playback.Trial) (playback.Outcome, error)
}

// SessionLog is the durable trial record. *sessionlog.Log implements it.
type SessionLog interface {
	WriteDemographics(answers map[string]string) error
	Append(rec sessionlog.Record) error
	Close() error
}

// Reporter receives state changes for the operator monitor.
type Reporter interface {
	SetState(state string, trial int, condition string)
	SetLogged(n int)
}

// SessionContext is everything one session owns. It is built once at startup
// and handed to the controller, which tears it down.
type SessionContext struct {
	ParticipantID string
	StimuliDir    string
	Plan          stimulus.Plan
	Protocol      config.Protocol

	// Questionnaire switches from the paper-rating prompt to in-app
	// demographics and ratings.
	Questionnaire bool
	Capture       bool
	AtonalCap     time.Duration

	Log     SessionLog
	Loop    Runner
	Surface Surface

	Manifest     *sessionlog.Manifest // optional
	ManifestPath string
	Reporter     Reporter // optional
	Now          func() time.Time
}

func (s *SessionContext) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
