// Package rpc exposes the cached feeds over gRPC as the homepage.Feeds
// service. It uses [grpc.ServiceDesc] registration so that no protobuf code
// generation is required.
//
// Because the request/response types are plain Go structs (not generated
// protobuf messages), the package registers a thin codec wrapper that
// JSON-encodes its own types while delegating all other messages to the
// standard proto codec. Importing this package activates the codec.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/urdh/homepage/cache"
	"github.com/urdh/homepage/feeds"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "homepage.Feeds"

// FeedRequest selects a feed by name ("books", "commits" or "tracks").
type FeedRequest struct {
	Name string `json:"name"`
}

// FeedResponse carries the cached JSON document of a feed.
type FeedResponse struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// PingRequest is the input for the Ping method.
type PingRequest struct {
	Message string `json:"message"`
}

// PingResponse is the output of the Ping method.
type PingResponse struct {
	Message        string `json:"message"`
	ServerTimeUnix int64  `json:"server_time_unix"`
}

// feedsMsg is a marker interface satisfied by every message of the service.
type feedsMsg interface {
	isFeedsMsg()
}

func (*FeedRequest) isFeedsMsg()  {}
func (*FeedResponse) isFeedsMsg() {}
func (*PingRequest) isFeedsMsg()  {}
func (*PingResponse) isFeedsMsg() {}

// Handler is the interface that a homepage.Feeds implementation must satisfy.
type Handler interface {
	Get(ctx context.Context, req *FeedRequest) (*FeedResponse, error)
	Ping(ctx context.Context, req *PingRequest) (*PingResponse, error)
}

// Service serves feeds through the same Memo as the HTTP site, so both
// surfaces share one cache entry per feed.
type Service struct {
	memo   *cache.Memo
	feeds  feeds.Set
	logger hclog.Logger
	now    func() time.Time
}

// NewService returns a Handler backed by memo and set.
func NewService(memo *cache.Memo, set feeds.Set, logger hclog.Logger) *Service {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Service{memo: memo, feeds: set, logger: logger, now: time.Now}
}

// Get resolves the named feed.
func (s *Service) Get(ctx context.Context, req *FeedRequest) (*FeedResponse, error) {
	f, ok := s.feeds.Lookup(req.Name)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown feed %q", req.Name)
	}
	data, err := s.memo.Resolve(ctx, f.CacheKey(), f.TTL, f.Producer)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, status.FromContextError(err).Err()
		}
		s.logger.Warn("feed failed", "feed", f.Name, "error", err)
		return nil, status.Error(Code(cache.StatusOf(err)), err.Error())
	}
	return &FeedResponse{Name: f.Name, Data: data}, nil
}

// Ping echoes the request message and attaches the current server time.
func (s *Service) Ping(_ context.Context, req *PingRequest) (*PingResponse, error) {
	return &PingResponse{
		Message:        req.Message,
		ServerTimeUnix: s.now().Unix(),
	}, nil
}

// Code maps an HTTP status to the gRPC code reported for it.
func Code(httpStatus int) codes.Code {
	switch {
	case httpStatus == http.StatusNotFound:
		return codes.NotFound
	case httpStatus == http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case httpStatus == http.StatusServiceUnavailable:
		return codes.Unavailable
	case httpStatus >= 400 && httpStatus < 500:
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}

// ServiceDesc is the grpc.ServiceDesc for the homepage.Feeds service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*Handler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Get",
			Handler:    getHandler,
		},
		{
			MethodName: "Ping",
			Handler:    pingHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "homepage/feeds.proto",
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(FeedRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Get(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Get",
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Get(ctx, r.(*FeedRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(PingRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Handler).Ping(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: "/" + ServiceName + "/Ping",
	}
	handler := func(ctx context.Context, r any) (any, error) {
		return srv.(Handler).Ping(ctx, r.(*PingRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// Register registers a homepage.Feeds implementation on the given server.
func Register(s grpc.ServiceRegistrar, h Handler) {
	s.RegisterService(&ServiceDesc, h)
}
