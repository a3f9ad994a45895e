package repo

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/miradorstack/firewall-mcp/internal/cache"
	"github.com/miradorstack/firewall-mcp/internal/config"
	"github.com/miradorstack/firewall-mcp/internal/metrics"
	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/query"
)

// maxErrorBody bounds how much of a failed response is echoed into errors.
const maxErrorBody = 512

var entityPaths = map[models.EntityType]string{
	models.EntityFlows:       "/v2/flows",
	models.EntityAlarms:      "/v2/alarms",
	models.EntityDevices:     "/v2/devices",
	models.EntityRules:       "/v2/rules",
	models.EntityTargetLists: "/v2/target-lists",
}

// FirewallClient searches firewall entities through the MSP REST API.
type FirewallClient struct {
	baseURL    string
	token      string
	boxID      string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Provider
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// NewFirewallClient constructs a client for the configured MSP domain. A nil
// cache provider disables caching; a non-positive rate disables throttling.
func NewFirewallClient(cfg config.FirewallConfig, cacheProvider cache.Provider, cacheTTL time.Duration, logger *slog.Logger) *FirewallClient {
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	baseURL := ""
	if strings.TrimSpace(cfg.MSPDomain) != "" {
		baseURL = strings.TrimRight(cfg.BaseURL(), "/")
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return &FirewallClient{
		baseURL:    baseURL,
		token:      cfg.Token,
		boxID:      strings.TrimSpace(cfg.BoxID),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		cache:      cacheProvider,
		cacheTTL:   cacheTTL,
		logger:     logger,
	}
}

// searchPage is the object form of a search response. Some endpoints return a
// bare array instead.
type searchPage struct {
	Results    []models.Record `json:"results"`
	Count      *int            `json:"count"`
	NextCursor string          `json:"next_cursor"`
}

// SearchEntities runs one query against the entity endpoint and returns a
// single page of results.
func (c *FirewallClient) SearchEntities(ctx context.Context, entityType models.EntityType, q string, opts models.SearchOptions) (models.SearchResult, error) {
	if c == nil {
		return models.SearchResult{}, fmt.Errorf("firewall client not initialised")
	}
	if c.baseURL == "" {
		return models.SearchResult{}, fmt.Errorf("firewall MSP domain not configured")
	}
	endpointPath, ok := entityPaths[entityType]
	if !ok {
		return models.SearchResult{}, fmt.Errorf("unsupported entity type %q", entityType)
	}
	if c.boxID != "" {
		q = query.MergeQuery(q, query.EqualityClause("box.id", c.boxID))
	}

	key := searchCacheKey(entityType, q, opts)
	if c.cacheTTL > 0 {
		if data, err := c.cache.Get(ctx, key); err == nil {
			var cached models.SearchResult
			if err := json.Unmarshal(data, &cached); err == nil {
				metrics.ObserveCacheLookup(true)
				return cached, nil
			}
		}
		metrics.ObserveCacheLookup(false)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return models.SearchResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	params := url.Values{}
	params.Set("query", q)
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		params.Set("cursor", opts.Cursor)
	}
	if opts.SortBy != "" {
		params.Set("sortBy", opts.SortBy)
	}

	result, err := c.getJSON(ctx, c.resolvePath(endpointPath), params)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("%s search request failed: %w", entityType, err)
	}

	if c.cacheTTL > 0 {
		if payload, err := json.Marshal(result); err == nil {
			if err := c.cache.Set(ctx, key, payload, c.cacheTTL); err != nil {
				c.logger.Debug("search cache write failed", slog.Any("error", err))
			}
		}
	}
	return result, nil
}

// RuleAction is a state change applied to a firewall rule.
type RuleAction string

const (
	RulePause  RuleAction = "pause"
	RuleResume RuleAction = "resume"
)

// RuleActionResult reports the outcome of a rule state change.
type RuleActionResult struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	RuleID  string     `json:"rule_id"`
	Action  RuleAction `json:"action"`
}

// SetRuleState pauses or resumes a rule. Cached searches are not invalidated;
// rule searches pick up the new state once their cache entries expire.
func (c *FirewallClient) SetRuleState(ctx context.Context, ruleID string, action RuleAction) (RuleActionResult, error) {
	if c == nil {
		return RuleActionResult{}, fmt.Errorf("firewall client not initialised")
	}
	if c.baseURL == "" {
		return RuleActionResult{}, fmt.Errorf("firewall MSP domain not configured")
	}
	ruleID = strings.TrimSpace(ruleID)
	if ruleID == "" || strings.ContainsAny(ruleID, "/?#") {
		return RuleActionResult{}, fmt.Errorf("invalid rule id %q", ruleID)
	}
	if action != RulePause && action != RuleResume {
		return RuleActionResult{}, fmt.Errorf("unsupported rule action %q", action)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return RuleActionResult{}, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := c.resolvePath(path.Join(entityPaths[models.EntityRules], ruleID, string(action)))
	if err := c.postJSON(ctx, endpoint, struct{}{}, nil); err != nil {
		return RuleActionResult{}, fmt.Errorf("%s rule request failed: %w", action, err)
	}
	return RuleActionResult{
		Success: true,
		Message: fmt.Sprintf("rule %s %sd", ruleID, action),
		RuleID:  ruleID,
		Action:  action,
	}, nil
}

func (c *FirewallClient) resolvePath(p string) string {
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *FirewallClient) getJSON(ctx context.Context, endpoint string, params url.Values) (models.SearchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return models.SearchResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.SearchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			return models.SearchResult{}, fmt.Errorf("firewall API returned %s: %s", resp.Status, msg)
		}
		return models.SearchResult{}, fmt.Errorf("firewall API returned %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.SearchResult{}, fmt.Errorf("read response: %w", err)
	}
	return decodeSearchResponse(body)
}

func (c *FirewallClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if msg := strings.TrimSpace(string(snippet)); msg != "" {
			return fmt.Errorf("firewall API returned %s: %s", resp.Status, msg)
		}
		return fmt.Errorf("firewall API returned %s", resp.Status)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeSearchResponse(body []byte) (models.SearchResult, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return models.SearchResult{Results: []models.Record{}}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var records []models.Record
		if err := json.Unmarshal(body, &records); err != nil {
			return models.SearchResult{}, fmt.Errorf("decode response: %w", err)
		}
		if records == nil {
			records = []models.Record{}
		}
		return models.SearchResult{Results: records, Count: len(records)}, nil
	}

	var page searchPage
	if err := json.Unmarshal(body, &page); err != nil {
		return models.SearchResult{}, fmt.Errorf("decode response: %w", err)
	}
	if page.Results == nil {
		if page.Count == nil {
			return models.SearchResult{}, errors.New("decode response: missing results")
		}
		page.Results = []models.Record{}
	}
	count := len(page.Results)
	if page.Count != nil && *page.Count > count {
		count = *page.Count
	}
	return models.SearchResult{Results: page.Results, Count: count, NextCursor: page.NextCursor}, nil
}

func searchCacheKey(entityType models.EntityType, q string, opts models.SearchOptions) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		string(entityType), q, strconv.Itoa(opts.Limit), opts.Cursor, opts.SortBy,
	}, "\x00")))
	return fmt.Sprintf("search:%s:%s", entityType, hex.EncodeToString(sum[:16]))
}
