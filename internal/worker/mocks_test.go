package worker_test

import (
	"context"

	"github.com/stretchr/testify/mock"

	"reviewrag/internal/worker"
)

type MockScraper struct{ mock.Mock }

func (m *MockScraper) Validate(rawURL string) error {
	return m.Called(rawURL).Error(0)
}

func (m *MockScraper) Run(ctx context.Context, task worker.ScrapeTask) error {
	return m.Called(ctx, task).Error(0)
}
