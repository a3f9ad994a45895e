package repo

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/miradorstack/firewall-mcp/internal/config"
	"github.com/miradorstack/firewall-mcp/internal/models"
)

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestSearchEntitiesBuildsRequest(t *testing.T) {
	cfg := config.FirewallConfig{MSPDomain: "acme.firewalla.net", Token: "secret", BoxID: "gid-1", Timeout: time.Second}
	client := NewFirewallClient(cfg, nil, 0, nil)

	var got *http.Request
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		got = req
		return jsonResponse(http.StatusOK, `{"results":[{"gid":"gid-1","ts":1709287200}],"count":7,"next_cursor":"abc"}`), nil
	}))

	res, err := client.SearchEntities(context.Background(), models.EntityTargetLists, "category:ad", models.SearchOptions{Limit: 25, Cursor: "c1", SortBy: "ts:desc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.URL.Scheme != "https" || got.URL.Host != "acme.firewalla.net" {
		t.Fatalf("unexpected host: %s", got.URL)
	}
	if got.URL.Path != "/v2/target-lists" {
		t.Fatalf("unexpected path: %s", got.URL.Path)
	}
	params := got.URL.Query()
	if q := params.Get("query"); q != "(category:ad) AND box.id:gid-1" {
		t.Fatalf("unexpected query: %q", q)
	}
	if params.Get("limit") != "25" || params.Get("cursor") != "c1" || params.Get("sortBy") != "ts:desc" {
		t.Fatalf("unexpected params: %v", params)
	}
	if auth := got.Header.Get("Authorization"); auth != "Token secret" {
		t.Fatalf("unexpected auth header: %q", auth)
	}
	if res.Count != 7 || len(res.Results) != 1 || res.NextCursor != "abc" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestSearchEntitiesQuotesBoxID(t *testing.T) {
	cfg := config.FirewallConfig{MSPDomain: "https://example.com", Token: "t", BoxID: "lab box:2"}
	client := NewFirewallClient(cfg, nil, 0, nil)

	var query string
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		query = req.URL.Query().Get("query")
		return jsonResponse(http.StatusOK, `[]`), nil
	}))

	if _, err := client.SearchEntities(context.Background(), models.EntityDevices, "online:true", models.SearchOptions{Limit: 5}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if query != `(online:true) AND box.id:"lab box:2"` {
		t.Fatalf("unexpected query: %q", query)
	}
}

func TestSearchEntitiesCachesResults(t *testing.T) {
	hits := 0
	stub := newStubCache()
	client := NewFirewallClient(config.FirewallConfig{MSPDomain: "https://example.com", Token: "t"}, stub, time.Minute, nil)
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		hits++
		if req.URL.Path != "/v2/alarms" {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(http.StatusOK, `[{"aid":1,"type":"video"},{"aid":2,"type":"porn"}]`), nil
	}))

	ctx := context.Background()
	opts := models.SearchOptions{Limit: 10}

	res, err := client.SearchEntities(ctx, models.EntityAlarms, "status:active", opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 1 || res.Count != 2 {
		t.Fatalf("unexpected first call: hits=%d result=%+v", hits, res)
	}
	if stub.len() != 1 {
		t.Fatalf("expected one cached page, got %d", stub.len())
	}

	cached, err := client.SearchEntities(ctx, models.EntityAlarms, "status:active", opts)
	if err != nil {
		t.Fatalf("unexpected cached error: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered network call; hits=%d", hits)
	}
	if len(cached.Results) != 2 || cached.Results[1]["type"] != "porn" {
		t.Fatalf("unexpected cached payload: %+v", cached)
	}

	if _, err := client.SearchEntities(ctx, models.EntityAlarms, "status:active", models.SearchOptions{Limit: 20}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits != 2 {
		t.Fatalf("different options must not share a cache entry; hits=%d", hits)
	}
}

func TestSearchEntitiesReportsUpstreamStatus(t *testing.T) {
	client := NewFirewallClient(config.FirewallConfig{MSPDomain: "example.com", Token: "t"}, nil, 0, nil)
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, `{"error":"bad token"}`), nil
	}))

	_, err := client.SearchEntities(context.Background(), models.EntityFlows, "protocol:tcp", models.SearchOptions{})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "bad token") || !strings.Contains(err.Error(), "flows") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSearchEntitiesRejectsUnconfiguredClient(t *testing.T) {
	client := NewFirewallClient(config.FirewallConfig{}, nil, 0, nil)
	if _, err := client.SearchEntities(context.Background(), models.EntityFlows, "x", models.SearchOptions{}); err == nil {
		t.Fatalf("expected error for missing domain")
	}

	var nilClient *FirewallClient
	if _, err := nilClient.SearchEntities(context.Background(), models.EntityFlows, "x", models.SearchOptions{}); err == nil {
		t.Fatalf("expected error for nil client")
	}

	client = NewFirewallClient(config.FirewallConfig{MSPDomain: "example.com"}, nil, 0, nil)
	if _, err := client.SearchEntities(context.Background(), models.EntityType("vpn"), "x", models.SearchOptions{}); err == nil {
		t.Fatalf("expected error for unknown entity type")
	}
}

func TestDecodeSearchResponse(t *testing.T) {
	res, err := decodeSearchResponse([]byte(`{"count":0}`))
	if err != nil || res.Count != 0 || res.Results == nil {
		t.Fatalf("unexpected empty page decode: %+v %v", res, err)
	}

	if _, err := decodeSearchResponse([]byte(`{"message":"nope"}`)); err == nil {
		t.Fatalf("expected error for object without results")
	}

	res, err = decodeSearchResponse([]byte(`{"results":[{"a":1},{"a":2}],"count":1}`))
	if err != nil || res.Count != 2 {
		t.Fatalf("count must cover returned records: %+v %v", res, err)
	}
}

func TestSetRuleState(t *testing.T) {
	client := NewFirewallClient(config.FirewallConfig{MSPDomain: "example.com", Token: "secret"}, nil, 0, nil)

	var got *http.Request
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		got = req
		return jsonResponse(http.StatusOK, `{}`), nil
	}))

	res, err := client.SetRuleState(context.Background(), "550e8400-e29b-41d4-a716-446655440000", RuleResume)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Method != http.MethodPost || got.URL.Path != "/v2/rules/550e8400-e29b-41d4-a716-446655440000/resume" {
		t.Fatalf("unexpected request: %s %s", got.Method, got.URL.Path)
	}
	if got.Header.Get("Authorization") != "Token secret" {
		t.Fatalf("missing auth header")
	}
	if !res.Success || res.Action != RuleResume || res.Message != "rule 550e8400-e29b-41d4-a716-446655440000 resumed" {
		t.Fatalf("unexpected result: %+v", res)
	}

	if _, err := client.SetRuleState(context.Background(), "../devices", RulePause); err == nil {
		t.Fatalf("expected error for rule id with path separators")
	}
	if _, err := client.SetRuleState(context.Background(), "r1", RuleAction("delete")); err == nil {
		t.Fatalf("expected error for unsupported action")
	}

	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `rule not found`), nil
	}))
	if _, err := client.SetRuleState(context.Background(), "r1", RulePause); err == nil || !strings.Contains(err.Error(), "rule not found") {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
