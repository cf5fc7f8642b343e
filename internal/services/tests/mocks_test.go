package services_test

import (
	"context"

	"weekend_planner_go_backend/internal/models"
	"weekend_planner_go_backend/internal/services"

	"github.com/stretchr/testify/mock"
)

type MockAgentRunner struct {
	mock.Mock
}

func (m *MockAgentRunner) Run(ctx context.Context, req models.RecommendationRequest, progress chan<- services.ProgressEvent) (*models.Recommendations, *models.UsageMetadata, error) {
	args := m.Called(ctx, req, progress)
	recs, _ := args.Get(0).(*models.Recommendations)
	usage, _ := args.Get(1).(*models.UsageMetadata)
	return recs, usage, args.Error(2)
}

type MockCacheStore struct {
	mock.Mock
}

func (m *MockCacheStore) Lookup(ctx context.Context, req models.RecommendationRequest, userID uint) (*models.RecommendationCache, bool, error) {
	args := m.Called(ctx, req, userID)
	entry, _ := args.Get(0).(*models.RecommendationCache)
	return entry, args.Bool(1), args.Error(2)
}

func (m *MockCacheStore) Store(ctx context.Context, req models.RecommendationRequest, recs *models.Recommendations, userID uint, meta *models.UsageMetadata) (uint, error) {
	args := m.Called(ctx, req, recs, userID, meta)
	return args.Get(0).(uint), args.Error(1)
}

func (m *MockCacheStore) History(ctx context.Context, userID uint, limit int) ([]services.HistoryEntry, error) {
	args := m.Called(ctx, userID, limit)
	history, _ := args.Get(0).([]services.HistoryEntry)
	return history, args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(topic string, msg interface{}) {
	m.Called(topic, msg)
}
