package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	pb "github.com/solargrade/solargrade-server/api/v1"
	"github.com/solargrade/solargrade-server/internal/grpc/mocks"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func dialBufconn(t *testing.T, srv pb.RankingsServer) pb.RankingsClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	s := grpclib.NewServer()
	pb.RegisterRankingsServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpclib.NewClient("passthrough:///bufnet",
		grpclib.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpclib.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return pb.NewRankingsClient(conn)
}

func TestRankingsService_RoundTrip(t *testing.T) {
	mockScoring := &mocks.MockScoringService{
		GetRankingsFunc: func(ctx context.Context, filter service.RankFilter) (service.RankingSnapshot, error) {
			return sampleSnapshot(), nil
		},
		GetVendorGradeFunc: func(ctx context.Context, vendorID string) (service.VendorAggregate, error) {
			return service.VendorAggregate{}, service.ErrVendorNotFound
		},
	}
	refresher := &mocks.MockRefresher{
		TriggerFunc: func(ctx context.Context) (service.RefreshOutcome, error) {
			return service.RefreshOutcome{
				Refresh:  service.RefreshResult{Success: true, UpdatedCount: 2, Message: "updated 2 of 2 vendors"},
				Snapshot: sampleSnapshot(),
			}, nil
		},
	}
	handlers := NewGRPCHandlers(mockScoring, refresher, &mocks.MockCacher{}, zaptest.NewLogger(t), time.Minute)
	client := dialBufconn(t, handlers)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	t.Run("GetRankings over the wire", func(t *testing.T) {
		resp, err := client.GetRankings(ctx, &pb.GetRankingsRequest{VendorType: "installer"})

		require.NoError(t, err)
		require.Len(t, resp.Entries, 2)
		assert.Equal(t, "sunco", resp.Entries[0].VendorId)
		require.NotNil(t, resp.Entries[0].RankChange)
		assert.Equal(t, int32(3), *resp.Entries[0].RankChange)
		assert.Nil(t, resp.Entries[1].RankChange)
		assert.True(t, resp.GeneratedAt.Equal(sampleSnapshot().GeneratedAt))
	})

	t.Run("status codes survive transport", func(t *testing.T) {
		_, err := client.GetVendorGrade(ctx, &pb.GetVendorGradeRequest{VendorId: "ghost"})

		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("RefreshRankings", func(t *testing.T) {
		resp, err := client.RefreshRankings(ctx, &pb.RefreshRankingsRequest{})

		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "updated 2 of 2 vendors", resp.Message)
	})

	t.Run("unimplemented server", func(t *testing.T) {
		bare := dialBufconn(t, pb.UnimplementedRankingsServer{})

		_, err := bare.VerifyReview(ctx, &pb.VerifyReviewRequest{ReviewId: "r"})

		assert.Equal(t, codes.Unimplemented, status.Code(err))
	})
}
