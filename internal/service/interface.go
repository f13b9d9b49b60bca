package service

import (
	"context"

	"github.com/solargrade/solargrade-server/internal/repository/models"
)

// GradingRepository defines the storage operations the service depends on.
type GradingRepository interface {
	VendorExists(ctx context.Context, vendorID string) (bool, error)
	InsertReview(ctx context.Context, review models.Review) error
	SetReviewVerified(ctx context.Context, reviewID string, verified bool) (bool, error)
	ListVendorsWithReviews(ctx context.Context) ([]models.VendorReviews, error)
	UpsertVendorAggregate(ctx context.Context, agg models.VendorAggregate) error
	ListVendorAggregates(ctx context.Context) ([]models.VendorAggregate, error)
	GetVendorAggregate(ctx context.Context, vendorID string) (models.VendorAggregate, error)
	SaveSnapshot(ctx context.Context, snapshot models.Snapshot) error
	LatestSnapshots(ctx context.Context, limit int) ([]models.Snapshot, error)
}
