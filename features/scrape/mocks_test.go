package scrape_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/stretchr/testify/mock"

	"reviewrag/features/job"
	"reviewrag/internal/extract"
)

type MockExtractor struct{ mock.Mock }

func (m *MockExtractor) Scrape(ctx context.Context, url string) (*extract.ScrapedProduct, error) {
	args := m.Called(ctx, url)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*extract.ScrapedProduct), args.Error(1)
}

type MockIndexer struct{ mock.Mock }

func (m *MockIndexer) IndexProduct(ctx context.Context, p *extract.ScrapedProduct) (int, error) {
	args := m.Called(ctx, p)
	return args.Int(0), args.Error(1)
}

type MockPublisher struct{ mock.Mock }

func (m *MockPublisher) Publish(topic string, body []byte) error {
	return m.Called(topic, body).Error(0)
}

// memJobs is an in-memory job.Repository.
type memJobs struct {
	mu   sync.Mutex
	seq  int
	jobs map[string]*job.Job
	// failErr, when set, is returned by Fail.
	failErr error
}

func newMemJobs() *memJobs { return &memJobs{jobs: map[string]*job.Job{}} }

func (m *memJobs) Create(ctx context.Context, j *job.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	j.ID = fmt.Sprintf("job-%d", m.seq)
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memJobs) update(id string, fn func(*job.Job)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return job.ErrNotFound
	}
	fn(j)
	return nil
}

func (m *memJobs) SetStatus(ctx context.Context, id, status string) error {
	return m.update(id, func(j *job.Job) { j.Status = status })
}

func (m *memJobs) Complete(ctx context.Context, id, productID string, documents int) error {
	return m.update(id, func(j *job.Job) {
		j.Status, j.ProductID, j.Documents, j.Error = job.StatusSucceeded, productID, documents, ""
	})
}

func (m *memJobs) Fail(ctx context.Context, id, message string) error {
	if m.failErr != nil {
		return m.failErr
	}
	return m.update(id, func(j *job.Job) { j.Status, j.Error = job.StatusFailed, message })
}

func (m *memJobs) MarkRetried(ctx context.Context, id string) error {
	return m.update(id, func(j *job.Job) { j.Status = job.StatusPending; j.Retries++ })
}

func (m *memJobs) Get(ctx context.Context, id string) (*job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) ListByStatus(ctx context.Context, status string) ([]job.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []job.Job
	for _, j := range m.jobs {
		if j.Status == status {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *memJobs) CountByStatus(ctx context.Context, status string) (int, error) {
	jobs, _ := m.ListByStatus(ctx, status)
	return len(jobs), nil
}
