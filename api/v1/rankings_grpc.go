package v1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const RankingsServiceName = "solargrade.v1.Rankings"

const (
	Rankings_SubmitReview_FullMethodName    = "/solargrade.v1.Rankings/SubmitReview"
	Rankings_VerifyReview_FullMethodName    = "/solargrade.v1.Rankings/VerifyReview"
	Rankings_GetRankings_FullMethodName     = "/solargrade.v1.Rankings/GetRankings"
	Rankings_GetVendorGrade_FullMethodName  = "/solargrade.v1.Rankings/GetVendorGrade"
	Rankings_RefreshRankings_FullMethodName = "/solargrade.v1.Rankings/RefreshRankings"
)

type RankingsServer interface {
	SubmitReview(context.Context, *SubmitReviewRequest) (*SubmitReviewResponse, error)
	VerifyReview(context.Context, *VerifyReviewRequest) (*VerifyReviewResponse, error)
	GetRankings(context.Context, *GetRankingsRequest) (*GetRankingsResponse, error)
	GetVendorGrade(context.Context, *GetVendorGradeRequest) (*VendorGradeResponse, error)
	RefreshRankings(context.Context, *RefreshRankingsRequest) (*RefreshRankingsResponse, error)
}

// UnimplementedRankingsServer answers every method with codes.Unimplemented.
type UnimplementedRankingsServer struct{}

func (UnimplementedRankingsServer) SubmitReview(context.Context, *SubmitReviewRequest) (*SubmitReviewResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitReview not implemented")
}

func (UnimplementedRankingsServer) VerifyReview(context.Context, *VerifyReviewRequest) (*VerifyReviewResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method VerifyReview not implemented")
}

func (UnimplementedRankingsServer) GetRankings(context.Context, *GetRankingsRequest) (*GetRankingsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetRankings not implemented")
}

func (UnimplementedRankingsServer) GetVendorGrade(context.Context, *GetVendorGradeRequest) (*VendorGradeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetVendorGrade not implemented")
}

func (UnimplementedRankingsServer) RefreshRankings(context.Context, *RefreshRankingsRequest) (*RefreshRankingsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RefreshRankings not implemented")
}

func RegisterRankingsServer(s grpc.ServiceRegistrar, srv RankingsServer) {
	s.RegisterService(&Rankings_ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(RankingsServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RankingsServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RankingsServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var Rankings_ServiceDesc = grpc.ServiceDesc{
	ServiceName: RankingsServiceName,
	HandlerType: (*RankingsServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitReview",
			Handler:    unaryHandler(Rankings_SubmitReview_FullMethodName, RankingsServer.SubmitReview),
		},
		{
			MethodName: "VerifyReview",
			Handler:    unaryHandler(Rankings_VerifyReview_FullMethodName, RankingsServer.VerifyReview),
		},
		{
			MethodName: "GetRankings",
			Handler:    unaryHandler(Rankings_GetRankings_FullMethodName, RankingsServer.GetRankings),
		},
		{
			MethodName: "GetVendorGrade",
			Handler:    unaryHandler(Rankings_GetVendorGrade_FullMethodName, RankingsServer.GetVendorGrade),
		},
		{
			MethodName: "RefreshRankings",
			Handler:    unaryHandler(Rankings_RefreshRankings_FullMethodName, RankingsServer.RefreshRankings),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "solargrade/v1/rankings",
}

type RankingsClient interface {
	SubmitReview(ctx context.Context, in *SubmitReviewRequest, opts ...grpc.CallOption) (*SubmitReviewResponse, error)
	VerifyReview(ctx context.Context, in *VerifyReviewRequest, opts ...grpc.CallOption) (*VerifyReviewResponse, error)
	GetRankings(ctx context.Context, in *GetRankingsRequest, opts ...grpc.CallOption) (*GetRankingsResponse, error)
	GetVendorGrade(ctx context.Context, in *GetVendorGradeRequest, opts ...grpc.CallOption) (*VendorGradeResponse, error)
	RefreshRankings(ctx context.Context, in *RefreshRankingsRequest, opts ...grpc.CallOption) (*RefreshRankingsResponse, error)
}

type rankingsClient struct {
	cc grpc.ClientConnInterface
}

// NewRankingsClient returns a client that always negotiates the JSON codec.
func NewRankingsClient(cc grpc.ClientConnInterface) RankingsClient {
	return &rankingsClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *rankingsClient) SubmitReview(ctx context.Context, in *SubmitReviewRequest, opts ...grpc.CallOption) (*SubmitReviewResponse, error) {
	return invoke[SubmitReviewResponse](ctx, c.cc, Rankings_SubmitReview_FullMethodName, in, opts)
}

func (c *rankingsClient) VerifyReview(ctx context.Context, in *VerifyReviewRequest, opts ...grpc.CallOption) (*VerifyReviewResponse, error) {
	return invoke[VerifyReviewResponse](ctx, c.cc, Rankings_VerifyReview_FullMethodName, in, opts)
}

func (c *rankingsClient) GetRankings(ctx context.Context, in *GetRankingsRequest, opts ...grpc.CallOption) (*GetRankingsResponse, error) {
	return invoke[GetRankingsResponse](ctx, c.cc, Rankings_GetRankings_FullMethodName, in, opts)
}

func (c *rankingsClient) GetVendorGrade(ctx context.Context, in *GetVendorGradeRequest, opts ...grpc.CallOption) (*VendorGradeResponse, error) {
	return invoke[VendorGradeResponse](ctx, c.cc, Rankings_GetVendorGrade_FullMethodName, in, opts)
}

func (c *rankingsClient) RefreshRankings(ctx context.Context, in *RefreshRankingsRequest, opts ...grpc.CallOption) (*RefreshRankingsResponse, error) {
	return invoke[RefreshRankingsResponse](ctx, c.cc, Rankings_RefreshRankings_FullMethodName, in, opts)
}
