package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/services"
)

// CorrelationClient is a typed client for the correlation service.
type CorrelationClient struct {
	conn grpc.ClientConnInterface
}

// NewCorrelationClient wraps an established connection.
func NewCorrelationClient(conn grpc.ClientConnInterface) *CorrelationClient {
	return &CorrelationClient{conn: conn}
}

func (c *CorrelationClient) invoke(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := ToStruct(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, resp, opts...); err != nil {
		return err
	}
	return FromStruct(resp, out)
}

// CrossReference calls the CrossReference RPC.
func (c *CorrelationClient) CrossReference(ctx context.Context, req models.CrossReferenceRequest, opts ...grpc.CallOption) (models.CrossReferenceReport, error) {
	var out models.CrossReferenceReport
	err := c.invoke(ctx, MethodCrossReference, req, &out, opts...)
	return out, err
}

// EnhancedCrossReference calls the EnhancedCrossReference RPC.
func (c *CorrelationClient) EnhancedCrossReference(ctx context.Context, req models.EnhancedCrossReferenceRequest, opts ...grpc.CallOption) (models.EnhancedCrossReferenceReport, error) {
	var out models.EnhancedCrossReferenceReport
	err := c.invoke(ctx, MethodEnhancedCrossReference, req, &out, opts...)
	return out, err
}

// Suggest calls the Suggest RPC.
func (c *CorrelationClient) Suggest(ctx context.Context, req models.SuggestRequest, opts ...grpc.CallOption) (models.SuggestionReport, error) {
	var out models.SuggestionReport
	err := c.invoke(ctx, MethodSuggest, req, &out, opts...)
	return out, err
}

// SearchEntities calls the SearchEntities RPC.
func (c *CorrelationClient) SearchEntities(ctx context.Context, req models.SearchRequest, opts ...grpc.CallOption) (models.EntitySearchResponse, error) {
	var out models.EntitySearchResponse
	err := c.invoke(ctx, MethodSearchEntities, req, &out, opts...)
	return out, err
}

// ListPatterns calls the ListPatterns RPC.
func (c *CorrelationClient) ListPatterns(ctx context.Context, q services.PatternQuery, opts ...grpc.CallOption) (services.PatternListing, error) {
	var out services.PatternListing
	err := c.invoke(ctx, MethodListPatterns, q, &out, opts...)
	return out, err
}
