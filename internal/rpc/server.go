package rpc

import (
	"context"
	"errors"
	"math"
	"slices"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/we-lineage/internal/lineage"
	"github.com/danielpatrickdp/we-lineage/internal/logging"
	"github.com/danielpatrickdp/we-lineage/internal/metrics"
)

// #region server-struct
// Server answers LineageService calls from one built genealogy.
type Server struct {
	resolver   *lineage.Resolver
	iterations int
	logger     *logging.Logger
}

// NewServer serves the genealogy behind resolver.
func NewServer(resolver *lineage.Resolver, iterations int, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{resolver: resolver, iterations: iterations, logger: logger}
}

// #endregion server-struct

// #region describe
// Describe reports the size of the served genealogy.
func (s *Server) Describe(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	g := s.resolver.Genealogy()
	return structpb.NewStruct(map[string]any{
		"iterations": s.iterations,
		"nodes":      g.Len(),
		"edges":      g.EdgeCount(),
	})
}

// #endregion describe

// #region map-to-ancestor
// MapToAncestor resolves {"lag": n} to {"lag": n, "mappings": [{"child", "ancestor"}]}
// with mappings ordered by child.
func (s *Server) MapToAncestor(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	started := time.Now()
	lag, err := lagOf(req)
	if err != nil {
		metrics.ObserveQuery(lineage.ErrInvalidLag, started)
		return nil, err
	}

	m, err := s.resolver.MapToAncestor(lag)
	metrics.ObserveQuery(err, started)
	if err != nil {
		s.logger.Warn("map to ancestor failed", "lag", lag, "error", err)
		return nil, toStatus(err)
	}

	children := make([]lineage.NodeID, 0, len(m))
	for c := range m {
		children = append(children, c)
	}
	slices.SortFunc(children, lineage.CompareNodeIDs)

	mappings := make([]any, len(children))
	for i, c := range children {
		mappings[i] = map[string]any{"child": c.String(), "ancestor": m[c].String()}
	}
	s.logger.Debug("map to ancestor", "lag", lag, "mapped", len(mappings), "elapsed", time.Since(started))
	return structpb.NewStruct(map[string]any{
		"lag":      lag,
		"mappings": mappings,
	})
}

func lagOf(req *structpb.Struct) (int, error) {
	v, ok := req.GetFields()["lag"]
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "lag is required")
	}
	num, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, status.Error(codes.InvalidArgument, "lag must be a number")
	}
	f := num.NumberValue
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, status.Errorf(codes.InvalidArgument, "lag must be an integer, got %v", f)
	}
	return int(f), nil
}

// #endregion map-to-ancestor

// #region status
func toStatus(err error) error {
	switch {
	case errors.Is(err, lineage.ErrInvalidLag):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, lineage.ErrMalformedLineage):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// #endregion status
