package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/firewall-mcp/internal/engine"
	"github.com/miradorstack/firewall-mcp/internal/fields"
	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/patterns"
	"github.com/miradorstack/firewall-mcp/internal/query"
	"github.com/miradorstack/firewall-mcp/internal/repo"
	"github.com/miradorstack/firewall-mcp/internal/services"
)

type rawResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

type fakeRules struct {
	calls []string
}

func (f *fakeRules) SetRuleState(_ context.Context, ruleID string, action repo.RuleAction) (repo.RuleActionResult, error) {
	f.calls = append(f.calls, string(action)+":"+ruleID)
	return repo.RuleActionResult{Success: true, Message: "ok", RuleID: ruleID, Action: action}, nil
}

func newTestServer(t *testing.T, search engine.EntitySearcherFunc, rules RuleController) *Server {
	t.Helper()
	fieldCatalog := fields.NewDefaultCatalog()
	correlator := engine.NewCorrelator(nil, search, fieldCatalog, query.NewTranslator(0, 0), engine.Options{})
	suggester := engine.NewSuggester(fieldCatalog, patterns.NewDefaultCatalog(), nil)
	svc := services.NewCorrelationService(nil, correlator, suggester)

	reg := NewRegistry()
	require.NoError(t, RegisterTools(reg, svc, rules))
	return NewServer(reg, ServerInfo{Name: "firewall-mcp", Version: "test"}, nil)
}

func staticSearch(records map[models.EntityType][]models.Record) engine.EntitySearcherFunc {
	return func(_ context.Context, et models.EntityType, _ string, opts models.SearchOptions) (models.SearchResult, error) {
		list := records[et]
		if opts.Limit > 0 && len(list) > opts.Limit {
			list = list[:opts.Limit]
		}
		return models.SearchResult{Results: list, Count: len(list)}, nil
	}
}

// session feeds lines to the server and returns responses keyed by raw ID.
func session(t *testing.T, srv *Server, lines ...string) map[string]rawResponse {
	t.Helper()
	var out bytes.Buffer
	err := srv.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	require.NoError(t, err)

	responses := make(map[string]rawResponse)
	scanner := bufio.NewScanner(&out)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		var resp rawResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses[string(resp.ID)] = resp
	}
	return responses
}

func call(id int, tool string, args any) string {
	params := map[string]any{"name": tool}
	if args != nil {
		params["arguments"] = args
	}
	data, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "method": "tools/call", "params": params})
	return string(data)
}

func toolResult(t *testing.T, resp rawResponse) CallToolResult {
	t.Helper()
	require.Nil(t, resp.Error)
	var res CallToolResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.NotEmpty(t, res.Content)
	return res
}

func TestInitializeListAndPing(t *testing.T) {
	srv := newTestServer(t, staticSearch(nil), &fakeRules{})

	responses := session(t, srv,
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05"}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":3,"method":"ping"}`,
	)
	require.Len(t, responses, 3, "notifications get no reply")

	var init initializeResult
	require.NoError(t, json.Unmarshal(responses["1"].Result, &init))
	assert.Equal(t, ProtocolVersion, init.ProtocolVersion)
	assert.Equal(t, "firewall-mcp", init.ServerInfo.Name)

	var list struct {
		Tools []Tool `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(responses["2"].Result, &list))
	names := make([]string, 0, len(list.Tools))
	for _, tool := range list.Tools {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.InputSchema.Type)
	}
	for _, want := range []string{
		"search_flows", "search_alarms", "search_devices", "search_rules", "search_target_lists",
		"search_cross_reference", "search_enhanced_cross_reference", "get_correlation_suggestions",
		"get_recommended_field_combinations", "get_correlation_patterns", "update_correlation_patterns",
		"get_field_catalog", "pause_rule", "resume_rule",
	} {
		assert.Contains(t, names, want)
	}

	assert.JSONEq(t, `{}`, string(responses["3"].Result))
}

func TestProtocolErrors(t *testing.T) {
	srv := newTestServer(t, staticSearch(nil), nil)

	responses := session(t, srv,
		`{not json`,
		`{"jsonrpc":"2.0","id":1,"method":"resources/list"}`,
		call(2, "drop_all_tables", nil),
		`{"jsonrpc":"1.0","id":3,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":4,"method":"tools/call","params":"oops"}`,
	)

	require.NotNil(t, responses["null"].Error)
	assert.Equal(t, CodeParseError, responses["null"].Error.Code)
	assert.Equal(t, CodeMethodNotFound, responses["1"].Error.Code)
	assert.Equal(t, CodeInvalidParams, responses["2"].Error.Code)
	assert.Equal(t, CodeInvalidRequest, responses["3"].Error.Code)
	assert.Equal(t, CodeInvalidParams, responses["4"].Error.Code)
}

func TestSearchAlarmsParameterValidation(t *testing.T) {
	srv := newTestServer(t, staticSearch(map[models.EntityType][]models.Record{
		models.EntityAlarms: {{"aid": 1.0, "severity": "high"}, {"aid": 2.0, "severity": "high"}},
	}), nil)

	cases := []struct {
		args    map[string]any
		isError bool
	}{
		{map[string]any{}, true},
		{map[string]any{"limit": 10}, true},
		{map[string]any{"query": "severity:high"}, true},
		{map[string]any{"query": "", "limit": 10}, true},
		{map[string]any{"query": nil, "limit": 10}, true},
		{map[string]any{"query": "severity:high", "limit": 0}, true},
		{map[string]any{"query": "severity:high", "limit": -1}, true},
		{map[string]any{"query": "severity:high", "limit": 20000}, true},
		{map[string]any{"query": "severity:high", "limit": "ten"}, true},
		{map[string]any{"query": "severity:high", "limit": 10}, false},
		{map[string]any{"query": "severity:high", "limit": 10, "aggregate": true}, false},
	}
	lines := make([]string, 0, len(cases))
	for i, tc := range cases {
		lines = append(lines, call(i+1, "search_alarms", tc.args))
	}
	responses := session(t, srv, lines...)

	for i, tc := range cases {
		res := toolResult(t, responses[jsonID(i+1)])
		assert.Equal(t, tc.isError, res.IsError, "case %d: %v => %s", i, tc.args, res.Content[0].Text)
	}

	ok := toolResult(t, responses[jsonID(10)])
	var body models.EntitySearchResponse
	require.NoError(t, json.Unmarshal([]byte(ok.Content[0].Text), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, models.EntityAlarms, body.EntityType)

	limitErr := toolResult(t, responses[jsonID(8)])
	assert.Contains(t, limitErr.Content[0].Text, "limit must be between 1 and 10000")
}

func TestEnhancedCrossReferenceTool(t *testing.T) {
	srv := newTestServer(t, staticSearch(map[models.EntityType][]models.Record{
		models.EntityFlows: {
			{"ts": 1709287200.0, "source": map[string]any{"ip": "192.168.1.10"}, "protocol": "tcp"},
		},
		models.EntityAlarms: {
			{"ts": 1709287230.0, "device": map[string]any{"ip": "192.168.1.10"}},
			{"ts": 1709287230.0, "device": map[string]any{"ip": "10.9.9.9"}},
		},
	}), nil)

	args := map[string]any{
		"primary_query":     map[string]any{"entity_type": "flows", "query": "protocol:tcp"},
		"secondary_queries": []any{map[string]any{"entity_type": "alarms", "query": "status:active"}},
		"correlation_params": map[string]any{
			"correlation_fields": []string{"source_ip"},
			"correlation_type":   "AND",
			"network_scope":      "192.168.1.0/24",
		},
	}
	responses := session(t, srv, call(1, "search_enhanced_cross_reference", args))

	res := toolResult(t, responses["1"])
	require.False(t, res.IsError, res.Content[0].Text)
	var report models.EnhancedCrossReferenceReport
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &report))
	require.Len(t, report.Results, 1)
	assert.Equal(t, 1, report.Summary.FilteredByScope)
	assert.Equal(t, 1.0, report.Results[0].CorrelationStrength)
}

func TestCorrelationToolValidationIsToolError(t *testing.T) {
	srv := newTestServer(t, staticSearch(nil), nil)

	args := map[string]any{
		"primary_query":     map[string]any{"entity_type": "flows", "query": "x"},
		"secondary_queries": []any{map[string]any{"entity_type": "alarms", "query": "y"}},
		"correlation_params": map[string]any{
			"correlation_fields": []string{"source_ip"},
			"correlation_type":   "XOR",
		},
	}
	responses := session(t, srv,
		call(1, "search_enhanced_cross_reference", args),
		call(2, "get_recommended_field_combinations", map[string]any{"entity_types": []string{"vpn"}}),
	)
	assert.True(t, toolResult(t, responses["1"]).IsError)
	assert.True(t, toolResult(t, responses["2"]).IsError)
}

func TestPatternAndCatalogTools(t *testing.T) {
	srv := newTestServer(t, staticSearch(nil), nil)

	update := map[string]any{"patterns": map[string]any{
		"custom": []any{map[string]any{
			"id": "dns_exfil", "name": "DNS exfiltration", "fields": []string{"domain", "device_ip"},
			"entity_types": []string{"flows", "alarms"}, "priority": "high",
		}},
	}}
	responses := session(t, srv,
		call(1, "update_correlation_patterns", update),
		call(2, "get_field_catalog", map[string]any{"entity_types": []string{"flows", "alarms"}}),
		call(3, "get_recommended_field_combinations", map[string]any{"entity_types": []string{"flows", "alarms"}}),
	)

	updated := toolResult(t, responses["1"])
	require.False(t, updated.IsError, updated.Content[0].Text)
	assert.JSONEq(t, `{"success": true, "added": 1}`, updated.Content[0].Text)

	var catalog services.FieldCatalogReport
	require.NoError(t, json.Unmarshal([]byte(toolResult(t, responses["2"]).Content[0].Text), &catalog))
	assert.Contains(t, catalog.SharedFields, "source_ip")

	combos := toolResult(t, responses["3"])
	assert.False(t, combos.IsError)
	assert.Contains(t, combos.Content[0].Text, "compatibility_score")

	// Patterns added in one session stay in the catalog.
	listed := session(t, srv, call(4, "get_correlation_patterns", map[string]any{"fields": []string{"domain"}, "priority": "high"}))
	assert.Contains(t, toolResult(t, listed["4"]).Content[0].Text, "dns_exfil")
}

func TestRuleTools(t *testing.T) {
	rules := &fakeRules{}
	srv := newTestServer(t, staticSearch(nil), rules)

	responses := session(t, srv,
		call(1, "resume_rule", map[string]any{"rule_id": "550e8400-e29b-41d4-a716-446655440000"}),
		call(2, "pause_rule", map[string]any{}),
	)

	res := toolResult(t, responses["1"])
	require.False(t, res.IsError)
	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(res.Content[0].Text), &body))
	for _, key := range []string{"success", "message", "rule_id", "action"} {
		assert.Contains(t, body, key)
	}
	assert.True(t, toolResult(t, responses["2"]).IsError)
	assert.Equal(t, []string{"resume:550e8400-e29b-41d4-a716-446655440000"}, rules.calls)
}

func TestCancelledToolCall(t *testing.T) {
	srv := newTestServer(t, func(ctx context.Context, _ models.EntityType, _ string, _ models.SearchOptions) (models.SearchResult, error) {
		<-ctx.Done()
		return models.SearchResult{}, ctx.Err()
	}, nil)

	responses := session(t, srv,
		call(7, "search_flows", map[string]any{"query": "protocol:tcp", "limit": 5}),
		`{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":7,"reason":"user aborted"}}`,
	)

	res := toolResult(t, responses["7"])
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "canceled")
}

// waitServer serves a single tool that blocks until its call is cancelled.
func waitServer(t *testing.T, limit int) *Server {
	t.Helper()
	reg := NewRegistry()
	require.NoError(t, reg.Register(RegisteredTool{
		Definition: Tool{Name: "wait", InputSchema: InputSchema{Type: "object"}},
		Handler: func(ctx context.Context, _ json.RawMessage) (CallToolResult, error) {
			<-ctx.Done()
			return CallToolResult{}, ctx.Err()
		},
	}))
	srv := NewServer(reg, ServerInfo{Name: "firewall-mcp", Version: "test"}, nil)
	srv.maxInFlight = limit
	return srv
}

func cancelled(id int) string {
	return `{"jsonrpc":"2.0","method":"notifications/cancelled","params":{"requestId":` + jsonID(id) + `}}`
}

// serveLines runs the server over lines, failing if it does not finish in time.
func serveLines(t *testing.T, srv *Server, lines ...string) []rawResponse {
	t.Helper()
	var out bytes.Buffer
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(context.Background(), strings.NewReader(strings.Join(lines, "\n")+"\n"), &out)
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not finish")
	}

	var responses []rawResponse
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var resp rawResponse
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &resp))
		responses = append(responses, resp)
	}
	return responses
}

func TestCancellationReachesQueuedCalls(t *testing.T) {
	srv := waitServer(t, 1)

	responses := serveLines(t, srv,
		call(1, "wait", nil),
		call(2, "wait", nil),
		call(3, "wait", nil),
		cancelled(1),
		cancelled(2),
		cancelled(3),
	)

	require.Len(t, responses, 3)
	for _, resp := range responses {
		res := toolResult(t, resp)
		assert.True(t, res.IsError)
		assert.Contains(t, res.Content[0].Text, "canceled")
	}
}

func TestDuplicateInFlightIDRejected(t *testing.T) {
	srv := waitServer(t, 4)

	responses := serveLines(t, srv,
		call(1, "wait", nil),
		call(1, "wait", nil),
		cancelled(1),
	)

	require.Len(t, responses, 2)
	var rejected, finished int
	for _, resp := range responses {
		assert.Equal(t, jsonID(1), string(resp.ID))
		if resp.Error != nil {
			assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
			assert.Contains(t, resp.Error.Message, "already in flight")
			rejected++
			continue
		}
		res := toolResult(t, resp)
		assert.Contains(t, res.Content[0].Text, "canceled")
		finished++
	}
	assert.Equal(t, 1, rejected)
	assert.Equal(t, 1, finished)

	srv.mu.Lock()
	assert.Empty(t, srv.inflight)
	srv.mu.Unlock()
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	tool := RegisteredTool{
		Definition: Tool{Name: "echo", InputSchema: InputSchema{Type: "object"}},
		Handler: func(context.Context, json.RawMessage) (CallToolResult, error) {
			return NewTextResult("hi"), nil
		},
	}
	require.NoError(t, reg.Register(tool))
	assert.Error(t, reg.Register(tool))
	assert.Error(t, reg.Register(RegisteredTool{Definition: Tool{Name: "nohandler"}}))
	assert.Equal(t, 1, reg.Len())
}

func jsonID(id int) string {
	data, _ := json.Marshal(id)
	return string(data)
}
