package service

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/apperrors"
	"github.com/ndewijer/Transaction-Tax-Report-Backend/internal/model"
)

const jobEventBuffer = 64

// ReportJob is a report run started in the background.
//
// Events delivers every progress event and is closed when the run ends. Delivery
// does not block the run: events are dropped when the buffer is full. Done is
// closed once Result and Err are final.
type ReportJob struct {
	ID        string
	UserID    string
	Params    model.TaxReportParams
	StartedAt time.Time

	events chan model.ReportProgress
	done   chan struct{}

	mu         sync.RWMutex
	last       model.ReportProgress
	result     *model.TaxReport
	err        error
	finishedAt *time.Time
}

func newReportJob(id, userID string, params model.TaxReportParams) *ReportJob {
	return &ReportJob{
		ID:        id,
		UserID:    userID,
		Params:    params,
		StartedAt: time.Now().UTC(),
		events:    make(chan model.ReportProgress, jobEventBuffer),
		done:      make(chan struct{}),
	}
}

// Events returns the progress channel of the job.
func (j *ReportJob) Events() <-chan model.ReportProgress {
	return j.events
}

// Done returns a channel closed when the job has finished.
func (j *ReportJob) Done() <-chan struct{} {
	return j.done
}

// Result returns the report of a finished job, nil while running or on failure.
func (j *ReportJob) Result() *model.TaxReport {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.result
}

// Err returns the failure of a finished job.
func (j *ReportJob) Err() error {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.err
}

// Status returns a snapshot of the job for polling clients.
func (j *ReportJob) Status() model.ReportJobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()

	status := model.ReportJobStatus{
		JobID:      j.ID,
		Params:     j.Params,
		Progress:   j.last.Progress,
		State:      j.last.State,
		Result:     j.result,
		StartedAt:  j.StartedAt,
		FinishedAt: j.finishedAt,
		Done:       j.finishedAt != nil,
	}
	if j.err != nil {
		status.Error = j.err.Error()
	}
	return status
}

func (j *ReportJob) publish(p model.ReportProgress) {
	j.mu.Lock()
	j.last = p
	j.mu.Unlock()

	select {
	case j.events <- p:
	default:
	}
}

func (j *ReportJob) finish(result *model.TaxReport, err error) {
	j.mu.Lock()
	now := time.Now().UTC()
	j.result = result
	j.err = err
	j.finishedAt = &now
	j.mu.Unlock()

	close(j.events)
	close(j.done)
}

func (j *ReportJob) finishedBefore(t time.Time) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.finishedAt != nil && j.finishedAt.Before(t)
}

// JobRegistry holds the background report jobs of every user.
type JobRegistry struct {
	mu        sync.RWMutex
	jobs      map[string]*ReportJob
	retention time.Duration
	now       func() time.Time
}

// NewJobRegistry creates a registry keeping finished jobs for retention.
func NewJobRegistry(retention time.Duration) *JobRegistry {
	return &JobRegistry{
		jobs:      make(map[string]*ReportJob),
		retention: retention,
		now:       time.Now,
	}
}

// Add registers a job.
func (r *JobRegistry) Add(job *ReportJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = job
}

// Get returns the job with id if it belongs to userID.
func (r *JobRegistry) Get(userID, id string) (*ReportJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok || job.UserID != userID {
		return nil, apperrors.ErrJobNotFound
	}
	return job, nil
}

// Prune removes jobs finished longer than the retention ago and returns how many.
func (r *JobRegistry) Prune() int {
	cutoff := r.now().UTC().Add(-r.retention)

	r.mu.Lock()
	defer r.mu.Unlock()

	pruned := 0
	for id, job := range r.jobs {
		if job.finishedBefore(cutoff) {
			delete(r.jobs, id)
			pruned++
		}
	}
	return pruned
}

// SchedulePruning adds a Prune run to c on the given cron spec, e.g. "@every 10m".
func (r *JobRegistry) SchedulePruning(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		if n := r.Prune(); n > 0 {
			log.WithField("pruned", n).Debug("pruned finished report jobs")
		}
	})
}
