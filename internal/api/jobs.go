package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"flashdeck/internal/models"
	"flashdeck/internal/services"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"
)

// Job tracks a workspace run that the frontend polls.
type Job struct {
	ID        string    `json:"jobId"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Message   string    `json:"message,omitempty"`
	Messages  []string  `json:"messages"`
	Cards     int       `json:"cards"`
	Error     string    `json:"error,omitempty"`
	Code      string    `json:"code,omitempty"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*Job
	now  func() time.Time
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *JobManager) CreateJob(kind services.RunKind, initial string) (string, *Job) {
	now := m.now()
	job := &Job{
		ID:        uuid.NewString(),
		Kind:      string(kind),
		Status:    JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		Message:   initial,
	}
	if initial != "" {
		job.Messages = []string{initial}
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*Job, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusProcessing
	})
}

func (m *JobManager) MarkCompleted(id string) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusComplete
	})
}

func (m *JobManager) MarkFailed(id string, err error) {
	m.withJob(id, func(job *Job) {
		job.Status = JobStatusFailed
		job.Error = services.UserMessage(err)
		job.Code = string(services.CodeOf(err))
	})
}

// Sink returns the progress sink that feeds job id.
func (m *JobManager) Sink(id string) services.ProgressSink {
	return jobSink{
		RecordingSink: services.NewRecordingSink(func(msg string) {
			m.withJob(id, func(job *Job) {
				job.Message = msg
				job.Messages = append(job.Messages, msg)
			})
		}),
		manager: m,
		id:      id,
	}
}

type jobSink struct {
	*services.RecordingSink
	manager *JobManager
	id      string
}

func (s jobSink) Render(cards []models.Flashcard) {
	s.RecordingSink.Render(cards)
	s.manager.withJob(s.id, func(job *Job) {
		job.Cards = len(cards)
	})
}

func (m *JobManager) withJob(id string, fn func(job *Job)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = m.now()
}

func (job *Job) clone() *Job {
	if job == nil {
		return nil
	}
	copyJob := *job
	copyJob.Messages = append(make([]string, 0, len(job.Messages)), job.Messages...)
	return &copyJob
}
