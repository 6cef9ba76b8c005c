// Package lifecycle drives one generation from submission to a persisted
// record: submit, optionally poll an asynchronous video job, normalize the
// result and save it to history.
//
// State machine:
//
//	Idle -> Submitting -> Completed | Polling | Failed
//	Polling -> Polling | Completed | Failed
//
// A controller runs at most one submission at a time. Submit is rejected with
// domain.ErrBusy while Submitting or Polling; Reset abandons the in-flight job
// (no cancellation is sent upstream) and returns to Idle.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"letssora/internal/domain"
	"letssora/internal/history"
	"letssora/internal/infra"
	"letssora/internal/normalize"
	"letssora/internal/observability"
	"letssora/internal/providers/image"
	"letssora/internal/providers/video"
)

// State is an observable controller state.
type State string

const (
	StateIdle       State = "idle"
	StateSubmitting State = "submitting"
	StatePolling    State = "polling"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Active reports whether a submission is in flight.
func (s State) Active() bool { return s == StateSubmitting || s == StatePolling }

// Terminal reports whether the submission has finished.
func (s State) Terminal() bool { return s == StateCompleted || s == StateFailed }

// ImageSubmitter performs synchronous image generation.
type ImageSubmitter interface {
	Submit(ctx context.Context, req image.Request) (*image.Result, error)
}

// VideoJobs submits and polls asynchronous video jobs.
type VideoJobs interface {
	Submit(ctx context.Context, req video.Request) (*video.Job, error)
	Poll(ctx context.Context, id string) (normalize.Document, error)
	FetchContent(ctx context.Context, id string) ([]byte, string, error)
}

// Persister saves a finished generation.
type Persister interface {
	Save(ctx context.Context, record *domain.GenerationRecord) (*domain.GenerationRecord, error)
}

// PersistenceWarning reports that a generation completed but could not be
// saved. It never turns a completed submission into a failure.
type PersistenceWarning struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (w *PersistenceWarning) Error() string { return w.Message }
func (w *PersistenceWarning) Unwrap() error { return w.Err }

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	State        State                    `json:"state"`
	Mode         domain.Mode              `json:"mode,omitempty"`
	JobID        string                   `json:"jobId,omitempty"`
	Progress     *float64                 `json:"progress,omitempty"`
	PollAttempts int                      `json:"pollAttempts"`
	Result       *domain.GenerationResult `json:"result,omitempty"`
	Record       *domain.GenerationRecord `json:"record,omitempty"`
	Error        string                   `json:"error,omitempty"`
	Warning      *PersistenceWarning      `json:"warning,omitempty"`
	StartedAt    *time.Time               `json:"startedAt,omitempty"`
	UpdatedAt    time.Time                `json:"updatedAt"`

	// Err is the error behind a Failed state, for errors.As/Is.
	Err error `json:"-"`
}

// Deps are the collaborators of a controller. Persister may be nil, in which
// case completed generations are not saved.
type Deps struct {
	Images    ImageSubmitter
	Videos    VideoJobs
	Persister Persister
}

// Options configures a controller.
type Options struct {
	// PollInterval is the wait between the end of one poll and the start of
	// the next. Defaults to 3s.
	PollInterval time.Duration
	// MaxPollDuration fails a job that is still running after this long.
	// Zero polls until a terminal state or Reset.
	MaxPollDuration time.Duration
	OwnerID         string
	Logger          *infra.Logger
	Metrics         *observability.Metrics
	// After is the timer source for poll intervals. Defaults to time.After.
	After func(time.Duration) <-chan time.Time
	Now   func() time.Time
	// SessionTTL evicts a Sessions entry that is not running once its state
	// has not changed for this long. Zero keeps sessions until removed.
	SessionTTL time.Duration
	// MaxOwnerSessions caps the sessions one owner may hold. Zero is no cap.
	MaxOwnerSessions int
}

// Controller is the generation state machine for one session.
type Controller struct {
	deps Deps

	interval    time.Duration
	maxPoll     time.Duration
	owner       string
	logger      *infra.Logger
	metrics     *observability.Metrics
	after       func(time.Duration) <-chan time.Time
	now         func() time.Time
	persistence bool

	mu     sync.Mutex
	snap   Snapshot
	gen    uint64
	cancel context.CancelFunc
	done   chan struct{}
}

func New(deps Deps, opts Options) *Controller {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	owner := strings.TrimSpace(opts.OwnerID)
	if owner == "" {
		owner = domain.DefaultOwnerID
	}
	logger := opts.Logger
	if logger == nil {
		logger = infra.NopLogger()
	}
	after := opts.After
	if after == nil {
		after = time.After
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	c := &Controller{
		deps:        deps,
		interval:    interval,
		maxPoll:     opts.MaxPollDuration,
		owner:       owner,
		logger:      logger,
		metrics:     opts.Metrics,
		after:       after,
		now:         now,
		persistence: deps.Persister != nil,
	}
	c.snap = Snapshot{State: StateIdle, UpdatedAt: now()}
	c.done = closedChan()
	return c
}

// Owner returns the history partition this controller saves into.
func (c *Controller) Owner() string { return c.owner }

// Snapshot returns the current observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.copySnapshot()
}

// Submit starts a generation. Validation failures and ErrBusy are returned as
// errors with no state change and no network call. Otherwise the returned
// snapshot is Completed or Failed for images, and Completed, Failed or Polling
// for videos; upstream failures are reported through the snapshot.
//
// ctx bounds the submit call only; polling continues until a terminal state,
// the poll deadline, or Reset.
func (c *Controller) Submit(ctx context.Context, req domain.GenerationRequest) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		c.metrics.RecordSubmit(ctx, string(req.Mode), "invalid")
		return c.Snapshot(), err
	}

	c.mu.Lock()
	if c.snap.State.Active() {
		snap := c.copySnapshot()
		c.mu.Unlock()
		return snap, domain.ErrBusy
	}
	gen := c.begin(req.Mode)
	c.mu.Unlock()

	started := c.now()
	c.logger.Info().
		Str("mode", string(req.Mode)).
		Str("owner", c.owner).
		Int("references", len(req.ReferenceImages)).
		Msg("lifecycle: submission started")

	switch req.Mode {
	case domain.ModeImage:
		c.submitImage(ctx, gen, req, started)
	case domain.ModeVideo:
		c.submitVideo(ctx, gen, req, started)
	}
	return c.Snapshot(), nil
}

// Wait blocks until the current submission is no longer active or ctx ends.
func (c *Controller) Wait(ctx context.Context) (Snapshot, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	select {
	case <-done:
		return c.Snapshot(), nil
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	}
}

// Reset abandons any in-flight job and returns to Idle. The upstream job is
// not cancelled.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.State.Active() {
		c.logger.Info().Str("job_id", c.snap.JobID).Msg("lifecycle: abandoning in-flight job")
	}
	c.gen++
	c.stopLocked()
	c.snap = Snapshot{State: StateIdle, UpdatedAt: c.now()}
}

// begin moves to Submitting for a new submission and returns its generation.
// Callers hold mu.
func (c *Controller) begin(mode domain.Mode) uint64 {
	c.gen++
	c.stopLocked()
	now := c.now()
	c.snap = Snapshot{State: StateSubmitting, Mode: mode, StartedAt: &now, UpdatedAt: now}
	c.done = make(chan struct{})
	return c.gen
}

// stopLocked cancels the poll loop and releases waiters. Callers hold mu.
func (c *Controller) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

// update applies fn if gen is still the current submission.
func (c *Controller) update(gen uint64, fn func(s *Snapshot)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	fn(&c.snap)
	c.snap.UpdatedAt = c.now()
	if c.snap.State.Terminal() {
		c.stopLocked()
	}
	return true
}

func (c *Controller) current(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.gen
}

func (c *Controller) submitImage(ctx context.Context, gen uint64, req domain.GenerationRequest, started time.Time) {
	res, err := c.deps.Images.Submit(ctx, image.Request{
		Prompt:     req.Prompt,
		Size:       req.Size,
		Quality:    req.Quality,
		References: req.ReferenceImages,
	})
	if err != nil {
		c.fail(ctx, gen, req.Mode, err, started)
		return
	}
	c.complete(ctx, gen, req, res.GenerationResult, started)
}

func (c *Controller) submitVideo(ctx context.Context, gen uint64, req domain.GenerationRequest, started time.Time) {
	job, err := c.deps.Videos.Submit(ctx, video.Request{
		Prompt:  req.Prompt,
		Size:    req.Size,
		Seconds: req.DurationSeconds,
	})
	if err != nil {
		c.fail(ctx, gen, req.Mode, err, started)
		return
	}

	norm := normalize.Normalize(job.Document, domain.ModeVideo)
	switch norm.State {
	case normalize.StateSucceeded:
		c.update(gen, func(s *Snapshot) { s.JobID = job.ID })
		c.finishVideo(ctx, gen, req, job.ID, norm, started)
		return
	case normalize.StateFailed:
		c.update(gen, func(s *Snapshot) { s.JobID = job.ID })
		c.fail(ctx, gen, req.Mode, errors.New(norm.ErrorMessage), started)
		return
	}

	pollCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	ok := c.update(gen, func(s *Snapshot) {
		s.State = StatePolling
		s.JobID = job.ID
		s.Progress = norm.Progress
	})
	if !ok {
		cancel()
		return
	}
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		cancel()
		return
	}
	c.cancel = cancel
	c.mu.Unlock()

	c.logger.Info().Str("job_id", job.ID).Str("status", norm.RawStatus).Msg("lifecycle: polling video job")
	go c.poll(pollCtx, gen, req, job.ID, started)
}

// poll waits an interval, issues exactly one poll, handles it, and repeats.
// The next wait starts only after the previous poll returned, so polls never
// overlap.
func (c *Controller) poll(ctx context.Context, gen uint64, req domain.GenerationRequest, jobID string, started time.Time) {
	pollStart := c.now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.after(c.interval):
		}
		if ctx.Err() != nil {
			return
		}
		if c.maxPoll > 0 && c.now().Sub(pollStart) >= c.maxPoll {
			c.fail(ctx, gen, req.Mode, fmt.Errorf("%w after %s", domain.ErrPollTimeout, c.maxPoll), started)
			return
		}

		doc, err := c.deps.Videos.Poll(ctx, jobID)
		c.metrics.RecordPoll(ctx, err != nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn().Err(err).Str("job_id", jobID).Msg("lifecycle: poll failed, will retry")
			c.update(gen, func(s *Snapshot) { s.PollAttempts++ })
			continue
		}

		norm := normalize.Normalize(doc, domain.ModeVideo)
		switch norm.State {
		case normalize.StateSucceeded:
			c.update(gen, func(s *Snapshot) { s.PollAttempts++ })
			c.finishVideo(ctx, gen, req, jobID, norm, started)
			return
		case normalize.StateFailed:
			c.update(gen, func(s *Snapshot) { s.PollAttempts++ })
			c.fail(ctx, gen, req.Mode, errors.New(norm.ErrorMessage), started)
			return
		default:
			if !c.update(gen, func(s *Snapshot) {
				s.PollAttempts++
				if norm.Progress != nil {
					s.Progress = norm.Progress
				}
			}) {
				return
			}
			c.logger.Debug().Str("job_id", jobID).Str("status", norm.RawStatus).Msg("lifecycle: video job in progress")
		}
	}
}

// finishVideo resolves the media of a succeeded job. A success token without
// any locator is resolved by fetching the job's content.
func (c *Controller) finishVideo(ctx context.Context, gen uint64, req domain.GenerationRequest, jobID string, norm normalize.Result, started time.Time) {
	result := domain.GenerationResult{
		MediaURL:           norm.MediaURL,
		MediaInlinePayload: norm.MediaInlinePayload,
		ContentType:        domain.ModeVideo.ContentType(),
		RevisedPrompt:      norm.RevisedPrompt,
	}
	if !result.HasMedia() {
		data, contentType, err := c.deps.Videos.FetchContent(ctx, jobID)
		if err != nil {
			c.fail(ctx, gen, req.Mode, fmt.Errorf("fetch video content: %w", err), started)
			return
		}
		result.MediaInlinePayload = data
		if contentType != "" {
			result.ContentType = contentType
		}
	}
	c.complete(ctx, gen, req, result, started)
}

// complete persists the result and moves to Completed. Persistence failures
// become a warning on the snapshot.
func (c *Controller) complete(ctx context.Context, gen uint64, req domain.GenerationRequest, result domain.GenerationResult, started time.Time) {
	if !c.current(gen) {
		return
	}
	shown := result
	var (
		record  *domain.GenerationRecord
		warning *PersistenceWarning
	)
	if c.persistence {
		saved, err := c.deps.Persister.Save(ctx, &domain.GenerationRecord{
			OwnerID:             c.owner,
			Mode:                req.Mode,
			Prompt:              req.Prompt,
			Settings:            req.Settings(),
			Result:              result,
			ReferenceImageCount: len(req.ReferenceImages),
		})
		if err != nil {
			warning = newWarning(err)
			c.metrics.RecordPersistWarning(ctx, warning.Stage)
			c.logger.Warn().Err(err).Str("stage", warning.Stage).Msg("lifecycle: generation completed but was not saved")
		} else {
			record = saved
			if saved.Result.MediaURL != "" {
				shown = saved.Result
			}
		}
	}

	if c.update(gen, func(s *Snapshot) {
		s.State = StateCompleted
		s.Result = &shown
		s.Record = record
		s.Warning = warning
		s.Error = ""
		s.Err = nil
		if s.Progress != nil {
			one := 1.0
			s.Progress = &one
		}
	}) {
		c.metrics.RecordSubmit(ctx, string(req.Mode), "completed")
		c.metrics.RecordDuration(ctx, string(req.Mode), "completed", c.now().Sub(started))
		c.logger.Info().Str("mode", string(req.Mode)).Bool("saved", record != nil).Msg("lifecycle: generation completed")
	}
}

func (c *Controller) fail(ctx context.Context, gen uint64, mode domain.Mode, err error, started time.Time) {
	if c.update(gen, func(s *Snapshot) {
		s.State = StateFailed
		s.Error = err.Error()
		s.Err = err
	}) {
		c.metrics.RecordSubmit(ctx, string(mode), "failed")
		c.metrics.RecordDuration(ctx, string(mode), "failed", c.now().Sub(started))
		c.logger.Warn().Err(err).Str("mode", string(mode)).Msg("lifecycle: generation failed")
	}
}

func (c *Controller) copySnapshot() Snapshot {
	s := c.snap
	if s.Progress != nil {
		p := *s.Progress
		s.Progress = &p
	}
	if s.Result != nil {
		r := *s.Result
		s.Result = &r
	}
	if s.Record != nil {
		r := *s.Record
		s.Record = &r
	}
	return s
}

func newWarning(err error) *PersistenceWarning {
	stage := history.StageHistory
	var pe *history.PersistError
	if errors.As(err, &pe) {
		stage = pe.Stage
	}
	return &PersistenceWarning{
		Stage:   stage,
		Message: "Generation succeeded but could not be saved to history: " + err.Error(),
		Err:     err,
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
