package service

import (
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

// ProgressSink receives the progress events of a report run.
type ProgressSink func(model.ReportProgress)

// ProgressStore keeps the last progress event of every user.
type ProgressStore struct {
	cache *gocache.Cache
}

// NewProgressStore creates a store whose entries expire after ttl.
func NewProgressStore(ttl time.Duration) *ProgressStore {
	return &ProgressStore{cache: gocache.New(ttl, 2*ttl)}
}

// Set records p as the last progress of userID.
func (s *ProgressStore) Set(userID string, p model.ReportProgress) {
	s.cache.SetDefault(userID, p)
}

// Get returns the last progress of userID or apperrors.ErrProgressNotFound.
func (s *ProgressStore) Get(userID string) (model.ReportProgress, error) {
	v, ok := s.cache.Get(userID)
	if !ok {
		return model.ReportProgress{}, apperrors.ErrProgressNotFound
	}
	return v.(model.ReportProgress), nil
}

var reportTransitions = map[model.ReportState][]model.ReportState{
	"":                               {model.ReportStateStarted},
	model.ReportStateStarted:         {model.ReportStateObtainingPrices, model.ReportStateInterrupted},
	model.ReportStateObtainingPrices: {model.ReportStateMatching, model.ReportStateInterrupted},
	model.ReportStateMatching:        {model.ReportStateCompleted, model.ReportStateInterrupted},
}

// progressTracker enforces the state machine of one report run and fans its
// events out to the sink and the user's ProgressStore entry.
type progressTracker struct {
	mu     sync.Mutex
	userID string
	jobID  string
	state  model.ReportState
	sink   ProgressSink
	store  *ProgressStore
}

func newProgressTracker(userID, jobID string, sink ProgressSink, store *ProgressStore) *progressTracker {
	return &progressTracker{
		userID: userID,
		jobID:  jobID,
		sink:   sink,
		store:  store,
	}
}

// transition moves to state and emits an event. Transitions not allowed from the
// current state are ignored and return false.
func (p *progressTracker) transition(state model.ReportState, progress *int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	allowed := false
	for _, next := range reportTransitions[p.state] {
		if next == state {
			allowed = true
			break
		}
	}
	if !allowed {
		return false
	}

	p.state = state
	p.emit(progress, "")
	return true
}

// progress emits a percentage within the current state.
func (p *progressTracker) progress(pct int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state.IsTerminal() {
		return
	}
	p.emit(&pct, "")
}

// fail emits the terminal failure notification. The state is left unchanged.
func (p *progressTracker) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.emit(nil, err.Error())
}

func (p *progressTracker) current() model.ReportState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *progressTracker) emit(progress *int, errMsg string) {
	event := model.ReportProgress{
		JobID:     p.jobID,
		Progress:  progress,
		State:     p.state,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	}
	if p.store != nil {
		p.store.Set(p.userID, event)
	}
	if p.sink != nil {
		p.sink(event)
	}
}

func intPtr(v int) *int {
	return &v
}
