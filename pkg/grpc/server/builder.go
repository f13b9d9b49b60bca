// Package server builds the gRPC server that fronts the rankings service,
// with health reporting, optional reflection and the standard interceptor
// chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

const (
	defaultPort           = 50051
	defaultMaxRecvMsgSize = 4 << 20
)

type config struct {
	port           int
	listener       net.Listener
	logger         *zap.Logger
	reflection     bool
	logging        bool
	recovery       bool
	maxRecvMsgSize int
	keepalive      *keepalive.ServerParameters
	interceptors   []grpc.UnaryServerInterceptor
	extra          []grpc.ServerOption
}

type Option func(*config)

func WithPort(port int) Option {
	return func(c *config) { c.port = port }
}

// WithListener serves on lis instead of opening a TCP port.
func WithListener(lis net.Listener) Option {
	return func(c *config) { c.listener = lis }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *config) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithReflection(enabled bool) Option {
	return func(c *config) { c.reflection = enabled }
}

func WithLogging(enabled bool) Option {
	return func(c *config) { c.logging = enabled }
}

// WithRecovery toggles the panic recovery interceptor. On by default.
func WithRecovery(enabled bool) Option {
	return func(c *config) { c.recovery = enabled }
}

func WithMaxRecvMsgSize(bytes int) Option {
	return func(c *config) {
		if bytes > 0 {
			c.maxRecvMsgSize = bytes
		}
	}
}

// WithKeepalive pings idle clients every interval and drops them after
// timeout without a reply.
func WithKeepalive(interval, timeout time.Duration) Option {
	return func(c *config) {
		c.keepalive = &keepalive.ServerParameters{Time: interval, Timeout: timeout}
	}
}

// WithUnaryInterceptors appends interceptors after recovery and logging.
func WithUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) Option {
	return func(c *config) { c.interceptors = append(c.interceptors, interceptors...) }
}

func WithServerOptions(opts ...grpc.ServerOption) Option {
	return func(c *config) { c.extra = append(c.extra, opts...) }
}

type Server struct {
	grpcServer *grpc.Server
	health     *health.Server
	lis        net.Listener
	logger     *zap.Logger
	errc       chan error
}

func New(opts ...Option) (*Server, error) {
	cfg := &config{
		port:           defaultPort,
		logger:         zap.NewNop(),
		recovery:       true,
		maxRecvMsgSize: defaultMaxRecvMsgSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	lis := cfg.listener
	if lis == nil {
		// Port 0 asks the kernel for a free port.
		if cfg.port < 0 || cfg.port > 65535 {
			return nil, fmt.Errorf("invalid port %d: must be between 0 and 65535", cfg.port)
		}
		var err error
		lis, err = net.Listen("tcp", fmt.Sprintf(":%d", cfg.port))
		if err != nil {
			return nil, fmt.Errorf("failed to listen on port %d: %w", cfg.port, err)
		}
	}

	grpcServer := grpc.NewServer(cfg.serverOptions()...)
	if cfg.reflection {
		reflection.Register(grpcServer)
	}

	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	return &Server{
		grpcServer: grpcServer,
		health:     hs,
		lis:        lis,
		logger:     cfg.logger.Named("grpc-server"),
		errc:       make(chan error, 1),
	}, nil
}

func (c *config) serverOptions() []grpc.ServerOption {
	var chain []grpc.UnaryServerInterceptor
	if c.recovery {
		chain = append(chain, RecoveryInterceptor(c.logger))
	}
	if c.logging {
		chain = append(chain, LoggingInterceptor(c.logger))
	}
	chain = append(chain, c.interceptors...)

	opts := []grpc.ServerOption{grpc.MaxRecvMsgSize(c.maxRecvMsgSize)}
	if len(chain) > 0 {
		opts = append(opts, grpc.ChainUnaryInterceptor(chain...))
	}
	if c.keepalive != nil {
		opts = append(opts, grpc.KeepaliveParams(*c.keepalive))
	}
	return append(opts, c.extra...)
}

// Register installs a service and reports it SERVING under name on the
// health endpoint.
func (s *Server) Register(name string, register func(grpc.ServiceRegistrar)) {
	register(s.grpcServer)
	if name == "" {
		return
	}
	s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	s.logger.Info("service registered", zap.String("service", name))
}

// SetServing flips a registered service between SERVING and NOT_SERVING.
func (s *Server) SetServing(name string, serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus(name, status)
	s.logger.Info("service health changed", zap.String("service", name), zap.Stringer("status", status))
}

// Start serves in the background. A serve failure is delivered on Err.
func (s *Server) Start() {
	s.logger.Info("gRPC server starting", zap.String("addr", s.lis.Addr().String()))

	go func() {
		err := s.grpcServer.Serve(s.lis)
		if err == nil || errors.Is(err, grpc.ErrServerStopped) {
			return
		}
		s.logger.Error("gRPC server failed", zap.Error(err))
		s.errc <- err
	}()
}

// Err reports a failure of the serve loop. It never fires after a normal
// shutdown.
func (s *Server) Err() <-chan error {
	return s.errc
}

// Shutdown flips health to NOT_SERVING, then drains in-flight calls,
// forcing a stop when ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gRPC server shutting down")
	s.health.Shutdown()

	drained := make(chan struct{})
	go func() {
		s.grpcServer.GracefulStop()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info("gRPC server stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("drain timed out, forcing stop")
		s.grpcServer.Stop()
		return ctx.Err()
	}
}

func (s *Server) Addr() net.Addr {
	return s.lis.Addr()
}
