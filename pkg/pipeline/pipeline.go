// Package pipeline runs one analysis at a time per session:
// load, detect, select a region, sample and classify.
//
// Starting a new analysis on a session supersedes the one in flight. The
// superseded run stops at its next stage boundary, releases its raster and
// returns ErrSuperseded; its outcome is never recorded and its observer is
// never called again.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/menta2k/undertone-analyzer/pkg/classifier"
	"github.com/menta2k/undertone-analyzer/pkg/detection"
	"github.com/menta2k/undertone-analyzer/pkg/loader"
	"github.com/menta2k/undertone-analyzer/pkg/region"
	"github.com/menta2k/undertone-analyzer/pkg/sampler"
	"github.com/menta2k/undertone-analyzer/pkg/types"
)

// State is the stage a session is in
type State int32

const (
	Idle State = iota
	Loading
	Detecting
	Sampling
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Detecting:
		return "detecting"
	case Sampling:
		return "sampling"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Observer is notified of every state transition of the current run. It is
// called synchronously and must not call Analyze or Cancel on the session.
type Observer func(State)

// Stages are the components a session runs. They are safe to share
// between sessions; Detector may be nil to always sample the full image.
type Stages struct {
	Loader   *loader.Loader
	Detector *detection.Detector
	Selector *region.Selector
	Sampler  *sampler.Sampler
}

// DefaultStages builds stages with default configuration around detector
func DefaultStages(detector *detection.Detector) Stages {
	return Stages{
		Loader:   loader.New(),
		Detector: detector,
		Selector: region.New(),
		Sampler:  sampler.New(),
	}
}

// Config holds session configuration
type Config struct {
	Observer Observer
	// Palette also extracts the dominant colors of the sampled region
	Palette bool
	Logger  *log.Logger
}

// Session serializes analyses for one user
type Session struct {
	id       string
	stages   Stages
	config   Config
	logger   *log.Logger
	observer Observer

	// mu guards generation and cancel, and is held while the observer runs
	// so that cancellation and notification never interleave
	mu         sync.Mutex
	generation uint64
	cancel     context.CancelCauseFunc

	state atomic.Int32
	last  atomic.Pointer[types.Outcome]
}

// NewSession creates a session with default configuration
func NewSession(stages Stages) *Session {
	return NewSessionWithConfig(stages, Config{})
}

// NewSessionWithConfig creates a session with custom configuration
func NewSessionWithConfig(stages Stages, config Config) *Session {
	if stages.Loader == nil {
		stages.Loader = loader.New()
	}
	if stages.Selector == nil {
		stages.Selector = region.New()
	}
	if stages.Sampler == nil {
		stages.Sampler = sampler.New()
	}

	logger := config.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Session{
		id:       uuid.NewString(),
		stages:   stages,
		config:   config,
		logger:   logger,
		observer: config.Observer,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// State returns the state of the latest run
func (s *Session) State() State {
	return State(s.state.Load())
}

// Generation returns how many analyses have been started
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Last returns the outcome of the latest completed, non-superseded run
func (s *Session) Last() (types.Outcome, bool) {
	if o := s.last.Load(); o != nil {
		return *o, true
	}
	return types.Outcome{}, false
}

// Cancel aborts the run in flight, if any. The aborted run returns
// context.Canceled.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel(context.Canceled)
		s.cancel = nil
	}
}

// Analyze runs the pipeline on src and returns its outcome. Pipeline
// failures are reported in the Outcome; the error is non-nil only when the
// run was discarded: ErrSuperseded when a newer Analyze replaced it, or the
// context error when ctx or Cancel aborted it.
func (s *Session) Analyze(ctx context.Context, src types.ImageSource) (types.Outcome, error) {
	runCtx, cancel := context.WithCancelCause(ctx)

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel(types.ErrSuperseded)
	}
	s.generation++
	gen := s.generation
	s.cancel = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.generation == gen {
			s.cancel = nil
		}
		s.mu.Unlock()
		cancel(context.Canceled)
	}()

	r := &run{
		session: s,
		ctx:     runCtx,
		id:      uuid.NewString()[:8],
		gen:     gen,
		started: time.Now(),
	}
	return r.execute(src)
}

// run is one analysis attempt
type run struct {
	session *Session
	ctx     context.Context
	id      string
	gen     uint64
	started time.Time
}

func (r *run) logf(format string, args ...any) {
	r.session.logger.Printf("pipeline[%s#%d]: "+format, append([]any{r.id, r.gen}, args...)...)
}

// aborted returns why the run was discarded, or nil while it is current
func (r *run) aborted() error {
	if r.ctx.Err() == nil {
		return nil
	}
	return context.Cause(r.ctx)
}

// enter moves the session into state unless the run has been discarded
func (r *run) enter(state State) error {
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := r.aborted(); err != nil {
		return err
	}
	s.state.Store(int32(state))
	if s.observer != nil {
		s.observer(state)
	}
	return nil
}

// finish records outcome as the session's latest and moves it to Done
func (r *run) finish(outcome types.Outcome) (types.Outcome, error) {
	s := r.session
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := r.aborted(); err != nil {
		r.discardedLocked(err)
		return types.Outcome{}, err
	}

	s.last.Store(&outcome)
	s.state.Store(int32(Done))
	if s.observer != nil {
		s.observer(Done)
	}

	if outcome.OK() {
		r.logf("done label=%s sample=%s in %s", outcome.Label, outcome.Sample.Hex(), time.Since(r.started).Round(time.Millisecond))
	} else {
		r.logf("failed kind=%s: %v", outcome.Kind(), outcome.Err)
	}
	return outcome, nil
}

// discardedLocked returns the session to Idle unless a newer run owns it.
// The observer is not called. Callers hold s.mu.
func (r *run) discardedLocked(err error) {
	s := r.session
	if s.generation == r.gen {
		s.state.Store(int32(Idle))
	}
	r.logf("discarded after %s: %v", time.Since(r.started).Round(time.Millisecond), err)
}

// stop is the common exit for a run that noticed it was discarded
func (r *run) stop(err error) (types.Outcome, error) {
	s := r.session
	s.mu.Lock()
	r.discardedLocked(err)
	s.mu.Unlock()
	return types.Outcome{}, err
}

func (r *run) execute(src types.ImageSource) (types.Outcome, error) {
	s := r.session

	if err := r.enter(Loading); err != nil {
		return r.stop(err)
	}
	r.logf("loading %s (%d bytes)", displayName(src), len(src.Data))

	raster, err := s.stages.Loader.Load(r.ctx, src)
	if err != nil {
		if aerr := r.aborted(); aerr != nil {
			return r.stop(aerr)
		}
		return r.finish(types.Failure(err))
	}
	defer raster.Release()

	if err := r.enter(Detecting); err != nil {
		return r.stop(err)
	}

	var face *types.BoundingBox
	if s.stages.Detector != nil {
		face, err = s.stages.Detector.Detect(r.ctx, raster.Image())
		if err != nil {
			if aerr := r.aborted(); aerr != nil {
				return r.stop(aerr)
			}
			// detection never fails the pipeline
			r.logf("detection error, using full image: %v", err)
			face = nil
		}
	}
	if face != nil {
		r.logf("face at %d,%d %dx%d", face.X, face.Y, face.Width, face.Height)
	} else {
		r.logf("no face, sampling full image")
	}

	if err := r.enter(Sampling); err != nil {
		return r.stop(err)
	}

	sr := s.stages.Selector.Select(raster.Width(), raster.Height(), face)
	sample, err := s.stages.Sampler.Mean(raster, sr)
	if err != nil {
		if aerr := r.aborted(); aerr != nil {
			return r.stop(aerr)
		}
		return r.finish(types.Failure(err))
	}

	outcome := types.Success(classifier.Classify(sample))
	outcome.Sample = sample
	outcome.Region = sr
	outcome.Face = face

	if s.config.Palette {
		palette, err := s.stages.Sampler.Palette(raster, sr)
		if err != nil {
			r.logf("palette unavailable: %v", err)
		} else {
			outcome.Palette = palette
		}
	}

	return r.finish(outcome)
}

func displayName(src types.ImageSource) string {
	if src.Name != "" {
		return src.Name
	}
	return "upload"
}
