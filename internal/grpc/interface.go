package grpc

import (
	"context"

	"github.com/solargrade/solargrade-server/internal/service"
)

type ScoringService interface {
	SubmitReview(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error)
	VerifyReview(ctx context.Context, reviewID string) error
	GetRankings(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error)
	GetVendorGrade(ctx context.Context, vendorID string) (service.VendorAggregate, error)
}

// Refresher runs one refresh-and-publish pass, sharing any pass already in flight.
type Refresher interface {
	Trigger(ctx context.Context) (service.RefreshOutcome, error)
}
