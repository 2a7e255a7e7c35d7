// Package scheduler runs the select, generate, publish cycle once or on a
// fixed interval.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/soypete/pedropost/pkg/content"
	"github.com/soypete/pedropost/pkg/database"
	"github.com/soypete/pedropost/pkg/ideas"
	"github.com/soypete/pedropost/pkg/metrics"
	"github.com/soypete/pedropost/pkg/social"
	"github.com/soypete/pedropost/pkg/storage"
)

// DefaultInterval is the pause between successful cycles.
const DefaultInterval = 2 * time.Hour

// Stage names used to wrap cycle errors.
const (
	StageSelectIdea    = "select idea"
	StageGenerateText  = "generate text"
	StageGenerateImage = "generate image"
	StagePublish       = "publish"
)

// IdeaSource hands out ideas in rotation along with the index selected.
type IdeaSource interface {
	NextIndexed() (ideas.Idea, int, error)
}

// ContentSynthesizer produces the post copy and image for an idea.
type ContentSynthesizer interface {
	SynthesizeText(ctx context.Context, idea ideas.Idea) (*content.GeneratedContent, error)
	SynthesizeImage(ctx context.Context, prompt string) ([]byte, error)
}

// Publisher posts text with an attached image.
type Publisher interface {
	Publish(ctx context.Context, text string, image []byte) (*social.PublishResult, error)
}

// HistoryRecorder stores one record per cycle attempt.
type HistoryRecorder interface {
	Record(ctx context.Context, rec *database.CycleRecord) error
}

// ImageArchiver keeps a copy of every generated image.
type ImageArchiver interface {
	SaveGenerated(ctx context.Context, cycleID string, data []byte) (*storage.ImageInfo, error)
}

// Schedule picks the start of the next cycle. *cron.SpecSchedule from
// github.com/robfig/cron/v3 satisfies it.
type Schedule interface {
	Next(now time.Time) time.Time
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// StageError wraps the error of the stage that ended a cycle.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// CycleResult describes a completed cycle.
type CycleResult struct {
	ID         string
	Idea       ideas.Idea
	IdeaIndex  int
	Content    *content.GeneratedContent
	ImageBytes int
	Post       *social.PublishResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Config holds the optional parts of a pipeline.
type Config struct {
	Interval time.Duration   // Optional, defaults to 2h
	Schedule Schedule        // Optional, replaces Interval when set
	Logger   *slog.Logger    // Optional, defaults to slog.Default()
	History  HistoryRecorder // Optional
	Archive  ImageArchiver   // Optional
	Sleep    Sleeper         // Optional, defaults to SleepContext
}

// Pipeline composes the idea ledger, content synthesizer and publisher.
type Pipeline struct {
	ideas     IdeaSource
	synth     ContentSynthesizer
	publisher Publisher
	history   HistoryRecorder
	archive   ImageArchiver
	interval  time.Duration
	schedule  Schedule
	now       func() time.Time
	sleep     Sleeper
	logger    *slog.Logger
}

// NewPipeline creates a pipeline.
func NewPipeline(src IdeaSource, synth ContentSynthesizer, publisher Publisher, cfg Config) *Pipeline {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = SleepContext
	}
	return &Pipeline{
		ideas:     src,
		synth:     synth,
		publisher: publisher,
		history:   cfg.History,
		archive:   cfg.Archive,
		interval:  cfg.Interval,
		schedule:  cfg.Schedule,
		now:       time.Now,
		sleep:     cfg.Sleep,
		logger:    cfg.Logger,
	}
}

// Interval returns the pause between cycles.
func (p *Pipeline) Interval() time.Duration {
	return p.interval
}

// RunOnce performs one cycle. The first failing stage ends the cycle and its
// error is returned wrapped in a *StageError; later stages never run.
func (p *Pipeline) RunOnce(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{
		ID:        uuid.New().String(),
		IdeaIndex: -1,
		StartedAt: time.Now().UTC(),
	}
	logger := p.logger.With("cycle_id", result.ID)

	err := p.run(ctx, logger, result)
	result.FinishedAt = time.Now().UTC()
	p.record(ctx, logger, result, err)

	if err != nil {
		metrics.CyclesTotal.WithLabelValues(database.StatusFailed).Inc()
		return nil, err
	}

	metrics.CyclesTotal.WithLabelValues(database.StatusPublished).Inc()
	metrics.LastSuccessTimestamp.Set(float64(result.FinishedAt.Unix()))
	return result, nil
}

func (p *Pipeline) run(ctx context.Context, logger *slog.Logger, result *CycleResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	idea, index, err := p.ideas.NextIndexed()
	metrics.ObserveStage(StageSelectIdea, start)
	if err != nil {
		return &StageError{Stage: StageSelectIdea, Err: err}
	}
	result.Idea = idea
	result.IdeaIndex = index
	metrics.IdeaIndex.Set(float64(result.IdeaIndex))
	logger.Info("Selected idea", "title", idea.Title, "index", result.IdeaIndex)

	start = time.Now()
	generated, err := p.synth.SynthesizeText(ctx, idea)
	metrics.ObserveStage(StageGenerateText, start)
	if err != nil {
		return &StageError{Stage: StageGenerateText, Err: err}
	}
	result.Content = generated
	logger.Info("Generated post text", "chars", len([]rune(generated.PostText)))

	start = time.Now()
	image, err := p.synth.SynthesizeImage(ctx, generated.ImagePrompt)
	metrics.ObserveStage(StageGenerateImage, start)
	if err != nil {
		return &StageError{Stage: StageGenerateImage, Err: err}
	}
	result.ImageBytes = len(image)
	logger.Info("Generated image", "prompt", generated.ImagePrompt, "bytes", len(image))

	if p.archive != nil {
		if info, err := p.archive.SaveGenerated(ctx, result.ID, image); err != nil {
			logger.Warn("failed to archive generated image", "error", err)
		} else {
			logger.Debug("archived generated image", "path", info.Path, "checksum", info.Checksum)
		}
	}

	start = time.Now()
	post, err := p.publisher.Publish(ctx, generated.PostText, image)
	metrics.ObserveStage(StagePublish, start)
	if err != nil {
		return &StageError{Stage: StagePublish, Err: err}
	}
	result.Post = post
	logger.Info("Post published", "post_id", post.PostID, "at", post.PublishedAt.Format(time.RFC3339))

	return nil
}

// record writes the cycle to history. History is auxiliary, so failures are
// only logged.
func (p *Pipeline) record(ctx context.Context, logger *slog.Logger, result *CycleResult, cycleErr error) {
	if p.history == nil {
		return
	}

	rec := &database.CycleRecord{
		ID:         result.ID,
		IdeaTitle:  result.Idea.Title,
		IdeaIndex:  result.IdeaIndex,
		Status:     database.StatusPublished,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
	}
	if result.Content != nil {
		rec.PostText = result.Content.PostText
		rec.ImagePrompt = result.Content.ImagePrompt
	}
	if result.Post != nil {
		rec.PostID = result.Post.PostID
		rec.MediaID = result.Post.MediaID
	}
	if cycleErr != nil {
		rec.Status = database.StatusFailed
		rec.Error = cycleErr.Error()
		if stageErr, ok := cycleErr.(*StageError); ok {
			rec.FailedStage = stageErr.Stage
		}
	}

	// Record even when ctx was cancelled mid-cycle
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := p.history.Record(recordCtx, rec); err != nil {
		logger.Warn("failed to record cycle history", "error", err)
	}
}

// RunForever runs cycles back to back, sleeping the interval (or until the
// next scheduled time) after each success. It returns the first cycle error, or ctx.Err() once ctx is done.
func (p *Pipeline) RunForever(ctx context.Context) error {
	for {
		if _, err := p.RunOnce(ctx); err != nil {
			return err
		}

		wait := p.nextWait()
		p.logger.Info("Sleeping", "seconds", int(wait.Seconds()))
		if err := p.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// nextWait is the pause after a successful cycle: the fixed interval, or the
// time until the schedule's next activation.
func (p *Pipeline) nextWait() time.Duration {
	if p.schedule == nil {
		return p.interval
	}
	now := p.now()
	wait := p.schedule.Next(now).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// SleepContext blocks for d. It returns early only when ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
