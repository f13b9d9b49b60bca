package mocks

import (
	"context"
	"errors"

	"github.com/solargrade/solargrade-server/internal/repository/models"
)

// MockGradingRepository is a mock implementation of the GradingRepository interface
// for testing the service layer.
type MockGradingRepository struct {
	VendorExistsFunc           func(ctx context.Context, vendorID string) (bool, error)
	InsertReviewFunc           func(ctx context.Context, review models.Review) error
	SetReviewVerifiedFunc      func(ctx context.Context, reviewID string, verified bool) (bool, error)
	ListVendorsWithReviewsFunc func(ctx context.Context) ([]models.VendorReviews, error)
	UpsertVendorAggregateFunc  func(ctx context.Context, agg models.VendorAggregate) error
	ListVendorAggregatesFunc   func(ctx context.Context) ([]models.VendorAggregate, error)
	GetVendorAggregateFunc     func(ctx context.Context, vendorID string) (models.VendorAggregate, error)
	SaveSnapshotFunc           func(ctx context.Context, snapshot models.Snapshot) error
	LatestSnapshotsFunc        func(ctx context.Context, limit int) ([]models.Snapshot, error)
}

func (m *MockGradingRepository) VendorExists(ctx context.Context, vendorID string) (bool, error) {
	if m.VendorExistsFunc != nil {
		return m.VendorExistsFunc(ctx, vendorID)
	}
	return false, errors.New("VendorExistsFunc not implemented")
}

func (m *MockGradingRepository) InsertReview(ctx context.Context, review models.Review) error {
	if m.InsertReviewFunc != nil {
		return m.InsertReviewFunc(ctx, review)
	}
	return errors.New("InsertReviewFunc not implemented")
}

func (m *MockGradingRepository) SetReviewVerified(ctx context.Context, reviewID string, verified bool) (bool, error) {
	if m.SetReviewVerifiedFunc != nil {
		return m.SetReviewVerifiedFunc(ctx, reviewID, verified)
	}
	return false, errors.New("SetReviewVerifiedFunc not implemented")
}

func (m *MockGradingRepository) ListVendorsWithReviews(ctx context.Context) ([]models.VendorReviews, error) {
	if m.ListVendorsWithReviewsFunc != nil {
		return m.ListVendorsWithReviewsFunc(ctx)
	}
	return nil, errors.New("ListVendorsWithReviewsFunc not implemented")
}

func (m *MockGradingRepository) UpsertVendorAggregate(ctx context.Context, agg models.VendorAggregate) error {
	if m.UpsertVendorAggregateFunc != nil {
		return m.UpsertVendorAggregateFunc(ctx, agg)
	}
	return errors.New("UpsertVendorAggregateFunc not implemented")
}

func (m *MockGradingRepository) ListVendorAggregates(ctx context.Context) ([]models.VendorAggregate, error) {
	if m.ListVendorAggregatesFunc != nil {
		return m.ListVendorAggregatesFunc(ctx)
	}
	return nil, errors.New("ListVendorAggregatesFunc not implemented")
}

func (m *MockGradingRepository) GetVendorAggregate(ctx context.Context, vendorID string) (models.VendorAggregate, error) {
	if m.GetVendorAggregateFunc != nil {
		return m.GetVendorAggregateFunc(ctx, vendorID)
	}
	return models.VendorAggregate{}, errors.New("GetVendorAggregateFunc not implemented")
}

func (m *MockGradingRepository) SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error {
	if m.SaveSnapshotFunc != nil {
		return m.SaveSnapshotFunc(ctx, snapshot)
	}
	return errors.New("SaveSnapshotFunc not implemented")
}

func (m *MockGradingRepository) LatestSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error) {
	if m.LatestSnapshotsFunc != nil {
		return m.LatestSnapshotsFunc(ctx, limit)
	}
	return nil, errors.New("LatestSnapshotsFunc not implemented")
}
