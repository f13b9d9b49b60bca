package mocks

import (
	"context"
	"errors"

	"github.com/solargrade/solargrade-server/internal/service"
)

// MockScoringService is a function-field implementation of the handlers'
// ScoringService dependency.
type MockScoringService struct {
	SubmitReviewFunc   func(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error)
	VerifyReviewFunc   func(ctx context.Context, reviewID string) error
	GetRankingsFunc    func(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error)
	GetVendorGradeFunc func(ctx context.Context, vendorID string) (service.VendorAggregate, error)
}

func (m *MockScoringService) SubmitReview(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error) {
	if m.SubmitReviewFunc != nil {
		return m.SubmitReviewFunc(ctx, sub)
	}
	return service.ReviewScore{}, errors.New("SubmitReviewFunc not implemented")
}

func (m *MockScoringService) VerifyReview(ctx context.Context, reviewID string) error {
	if m.VerifyReviewFunc != nil {
		return m.VerifyReviewFunc(ctx, reviewID)
	}
	return errors.New("VerifyReviewFunc not implemented")
}

func (m *MockScoringService) GetRankings(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error) {
	if m.GetRankingsFunc != nil {
		return m.GetRankingsFunc(ctx, filter)
	}
	return service.RankingSnapshot{}, errors.New("GetRankingsFunc not implemented")
}

func (m *MockScoringService) GetVendorGrade(ctx context.Context, vendorID string) (service.VendorAggregate, error) {
	if m.GetVendorGradeFunc != nil {
		return m.GetVendorGradeFunc(ctx, vendorID)
	}
	return service.VendorAggregate{}, errors.New("GetVendorGradeFunc not implemented")
}

// MockRefresher stands in for the refresh scheduler.
type MockRefresher struct {
	TriggerFunc func(ctx context.Context) (service.RefreshOutcome, error)
}

func (m *MockRefresher) Trigger(ctx context.Context) (service.RefreshOutcome, error) {
	if m.TriggerFunc != nil {
		return m.TriggerFunc(ctx)
	}
	return service.RefreshOutcome{}, errors.New("TriggerFunc not implemented")
}
