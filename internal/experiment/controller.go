package experiment

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/satindergrewal/tonalstudy/internal/config"
	"github.com/satindergrewal/tonalstudy/internal/playback"
	"github.com/satindergrewal/tonalstudy/internal/sessionlog"
	"github.com/satindergrewal/tonalstudy/internal/stimulus"
)

// Result is how a session ended. A cancelled session is not an error.
type Result struct {
	State        State
	TrialsLogged int
	Outcomes     []playback.Outcome // one per trial that finished playing
}

// Controller runs one session. It is single use.
type Controller struct {
	s      *SessionContext
	state  State
	trial  int
	logged int
	outs   []playback.Outcome
}

func NewController(s *SessionContext) *Controller {
	return &Controller{s: s, state: AwaitingStart}
}

// State returns the current state.
func (c *Controller) State() State { return c.state }

// Run executes the whole plan. It returns only after the log, manifest and
// surface have been released, whatever the outcome.
func (c *Controller) Run(ctx context.Context) (res Result, err error) {
	defer func() {
		c.teardown(err)
		res = Result{State: c.state, TrialsLogged: c.logged, Outcomes: c.outs}
	}()

	if err := c.intro(ctx); err != nil {
		return res, c.interrupted(ctx, err)
	}

	total := len(c.s.Plan)
	for i, item := range c.s.Plan {
		c.trial = i + 1
		cancelled, err := c.runTrial(ctx, item, total)
		if err != nil {
			return res, err
		}
		if cancelled {
			return res, nil
		}
		if c.trial < total {
			if err := c.s.Surface.ShowMessage(ctx, config.Fill(c.s.Protocol.BetweenTrials, c.trial, total)); err != nil {
				return res, c.interrupted(ctx, err)
			}
		}
	}

	c.enter(SessionComplete, nil)
	log.Printf("Session %s complete: %d trials logged", c.s.ParticipantID, c.logged)
	if err := c.s.Surface.ShowMessage(ctx, config.Fill(c.s.Protocol.Goodbye, total, total)); err != nil && ctx.Err() == nil {
		log.Printf("Goodbye screen: %v", err)
	}
	return res, nil
}

func (c *Controller) intro(ctx context.Context) error {
	total := len(c.s.Plan)
	for _, text := range c.s.Protocol.Welcome {
		if err := c.s.Surface.ShowMessage(ctx, config.Fill(text, 0, total)); err != nil {
			return err
		}
	}
	if !c.s.Questionnaire {
		return nil
	}
	answers, err := ask(ctx, c.s.Surface, c.s.Protocol.Demographics)
	if err != nil {
		return err
	}
	if err := c.s.Log.WriteDemographics(answers); err != nil {
		return fmt.Errorf("log demographics: %w", err)
	}
	log.Printf("Demographics recorded for %s", c.s.ParticipantID)
	return nil
}

// runTrial takes one trial from AwaitingStart to Logged. It reports true when
// the session was cancelled along the way.
func (c *Controller) runTrial(ctx context.Context, item stimulus.Item, total int) (bool, error) {
	c.enter(AwaitingStart, &item)
	if err := c.s.Surface.ShowMessage(ctx, config.Fill(c.s.Protocol.TrialStart, c.trial, total)); err != nil {
		err = c.interrupted(ctx, err)
		return err == nil, err
	}

	c.enter(Presenting, &item)
	out, err := c.s.Loop.Run(ctx, playback.Trial{
		Item:        item,
		Path:        stimulus.Path(c.s.StimuliDir, item.Ref),
		Index:       c.trial,
		Total:       total,
		MaxDuration: item.MaxDuration(c.s.AtonalCap),
		Capture:     c.s.Capture,
	})
	if err != nil {
		return false, fmt.Errorf("trial %d: %w", c.trial, err)
	}
	if out.Reason == playback.Cancelled {
		c.enter(Cancelled, &item)
		return true, nil
	}
	c.outs = append(c.outs, out)
	log.Printf("Trial %d/%d ended (%s) after %v", c.trial, total, out.Reason, out.Elapsed.Round(10*time.Millisecond))

	c.enter(AwaitingResponse, &item)
	responses, err := c.collect(ctx, total)
	if err != nil {
		err = c.interrupted(ctx, err)
		return err == nil, err
	}

	rec := sessionlog.Record{
		TrialNum:  c.trial,
		Condition: string(item.Condition),
		File:      item.Ref,
		Responses: responses,
	}
	if out.Artifact != "" {
		rec.Artifact = filepath.Base(out.Artifact)
	}
	if err := c.s.Log.Append(rec); err != nil {
		return false, fmt.Errorf("log trial %d: %w", c.trial, err)
	}
	c.logged++
	c.enter(Logged, &item)
	if c.s.Reporter != nil {
		c.s.Reporter.SetLogged(c.logged)
	}
	return false, nil
}

// collect gathers the post-trial responses: in-app ratings, or just an
// acknowledgement that the paper form was filled in.
func (c *Controller) collect(ctx context.Context, total int) (map[string]string, error) {
	if c.s.Questionnaire {
		return ask(ctx, c.s.Surface, c.s.Protocol.Ratings)
	}
	if err := c.s.Surface.ShowMessage(ctx, config.Fill(c.s.Protocol.PaperRating, c.trial, total)); err != nil {
		return nil, err
	}
	return nil, nil
}

// interrupted turns a surface error into a cancellation when the session
// context is done. Any other error is returned as is.
func (c *Controller) interrupted(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		c.enter(Cancelled, nil)
		return nil
	}
	return err
}

func (c *Controller) enter(s State, item *stimulus.Item) {
	c.state = s
	if c.s.Reporter == nil {
		return
	}
	cond := ""
	if item != nil {
		cond = string(item.Condition)
	}
	c.s.Reporter.SetState(s.String(), c.trial, cond)
}

// teardown releases the log, then the surface, and stamps the manifest.
// Capture resources never outlive a Loop.Run call, so they are already gone.
func (c *Controller) teardown(cause error) {
	if err := c.s.Log.Close(); err != nil {
		log.Printf("Closing session log: %v", err)
	}

	status := sessionlog.StatusFailed
	switch {
	case cause != nil:
		log.Printf("Session %s aborted in %s after %d trials: %v", c.s.ParticipantID, c.state, c.logged, cause)
	case c.state == SessionComplete:
		status = sessionlog.StatusComplete
	case c.state == Cancelled:
		status = sessionlog.StatusCancelled
		log.Printf("Session %s cancelled after %d trials", c.s.ParticipantID, c.logged)
	}
	if c.s.Manifest != nil {
		c.s.Manifest.Finish(status, c.logged, cause, c.s.now())
		if err := c.s.Manifest.Save(c.s.ManifestPath); err != nil {
			log.Printf("Saving session manifest: %v", err)
		}
	}
	if c.s.Reporter != nil {
		c.s.Reporter.SetState(status, c.trial, "")
	}

	if err := c.s.Surface.Close(); err != nil {
		log.Printf("Closing surface: %v", err)
	}
}
