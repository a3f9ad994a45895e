package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/services"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

// Backend is the service facade the gRPC handlers delegate to.
type Backend interface {
	SearchEntities(ctx context.Context, req models.SearchRequest) (models.EntitySearchResponse, error)
	CrossReference(ctx context.Context, req models.CrossReferenceRequest) (models.CrossReferenceReport, error)
	EnhancedCrossReference(ctx context.Context, req models.EnhancedCrossReferenceRequest) (models.EnhancedCrossReferenceReport, error)
	Suggest(ctx context.Context, req models.SuggestRequest) (models.SuggestionReport, error)
	ListPatterns(q services.PatternQuery) (services.PatternListing, error)
}

// Handler implements CorrelationServer on top of a Backend.
type Handler struct {
	backend Backend
	logger  *slog.Logger
}

// NewHandler constructs the gRPC handler set.
func NewHandler(backend Backend, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{backend: backend, logger: logger}
}

// CrossReference implements CorrelationServer.
func (h *Handler) CrossReference(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.CrossReferenceRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	report, err := h.backend.CrossReference(ctx, req)
	return h.reply(MethodCrossReference, report, err)
}

// EnhancedCrossReference implements CorrelationServer.
func (h *Handler) EnhancedCrossReference(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.EnhancedCrossReferenceRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	report, err := h.backend.EnhancedCrossReference(ctx, req)
	return h.reply(MethodEnhancedCrossReference, report, err)
}

// Suggest implements CorrelationServer.
func (h *Handler) Suggest(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.SuggestRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	report, err := h.backend.Suggest(ctx, req)
	return h.reply(MethodSuggest, report, err)
}

// SearchEntities implements CorrelationServer.
func (h *Handler) SearchEntities(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.SearchRequest
	if err := FromStruct(in, &req); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	resp, err := h.backend.SearchEntities(ctx, req)
	return h.reply(MethodSearchEntities, resp, err)
}

// ListPatterns implements CorrelationServer.
func (h *Handler) ListPatterns(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var q services.PatternQuery
	if err := FromStruct(in, &q); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	listing, err := h.backend.ListPatterns(q)
	return h.reply(MethodListPatterns, listing, err)
}

func (h *Handler) reply(method string, value any, err error) (*structpb.Struct, error) {
	if err != nil {
		st := ToStatus(err)
		if st.Code() == codes.Internal {
			h.logger.Error("correlation rpc failed", slog.String("method", method), slog.Any("error", err))
		}
		return nil, st.Err()
	}
	out, err := ToStruct(value)
	if err != nil {
		h.logger.Error("encode response failed", slog.String("method", method), slog.Any("error", err))
		return nil, status.Error(codes.Internal, "failed to encode response")
	}
	return out, nil
}

// ToStatus maps domain errors onto gRPC status codes.
func ToStatus(err error) *status.Status {
	switch {
	case err == nil:
		return status.New(codes.OK, "")
	case utils.IsValidation(err):
		return status.New(codes.InvalidArgument, utils.UserMessage(err))
	case errors.Is(err, context.DeadlineExceeded):
		return status.New(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.New(codes.Canceled, err.Error())
	default:
		return status.New(codes.Internal, err.Error())
	}
}

// FromStruct decodes a Struct into a domain request. Unknown keys are rejected.
// A nil Struct decodes as an empty object.
func FromStruct(in *structpb.Struct, out any) error {
	if in == nil {
		in = &structpb.Struct{}
	}
	data, err := protojson.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

// ToStruct encodes any JSON-serialisable value as a Struct.
func ToStruct(value any) (*structpb.Struct, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert to struct: %w", err)
	}
	return out, nil
}
