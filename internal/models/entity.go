package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityType enumerates the firewall record categories that can be searched.
type EntityType string

const (
	EntityFlows       EntityType = "flows"
	EntityAlarms      EntityType = "alarms"
	EntityDevices     EntityType = "devices"
	EntityRules       EntityType = "rules"
	EntityTargetLists EntityType = "target_lists"
)

// AllEntityTypes returns every supported entity type in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityFlows, EntityAlarms, EntityDevices, EntityRules, EntityTargetLists}
}

// Valid reports whether the entity type is one of the supported categories.
func (e EntityType) Valid() bool {
	switch e {
	case EntityFlows, EntityAlarms, EntityDevices, EntityRules, EntityTargetLists:
		return true
	default:
		return false
	}
}

// ParseEntityType normalises user input ("Target-Lists", " alarms ") into an EntityType.
func ParseEntityType(value string) (EntityType, error) {
	normalised := strings.ToLower(strings.TrimSpace(value))
	normalised = strings.ReplaceAll(normalised, "-", "_")
	et := EntityType(normalised)
	if !et.Valid() {
		return "", fmt.Errorf("unknown entity type %q", value)
	}
	return et, nil
}

// Record is a single loosely-typed entity returned by the firewall API.
type Record map[string]any

// TimeRange bounds a search window.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// TimeRangeInput is the caller-facing ISO-8601 representation of a TimeRange.
type TimeRangeInput struct {
	Start string `json:"start" yaml:"start" validate:"required"`
	End   string `json:"end" yaml:"end" validate:"required"`
}

// SearchRequest describes one entity query inside a correlation request.
type SearchRequest struct {
	EntityType EntityType        `json:"entity_type" validate:"required,entity_type"`
	Query      string            `json:"query" validate:"required"`
	Limit      int               `json:"limit,omitempty" validate:"gte=0,lte=10000"`
	Cursor     string            `json:"cursor,omitempty"`
	SortBy     string            `json:"sort_by,omitempty"`
	TimeRange  *TimeRangeInput   `json:"time_range,omitempty"`
	Filters    map[string]string `json:"filters,omitempty"`
}

// SearchOptions are passed through to the entity search primitive.
type SearchOptions struct {
	Limit  int
	Cursor string
	SortBy string
}

// SearchResult is a single page returned by the entity search primitive.
type SearchResult struct {
	Results    []Record `json:"results"`
	Count      int      `json:"count"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

// EntitySearchResponse is the caller-facing result of a single-entity search.
type EntitySearchResponse struct {
	EntityType EntityType `json:"entity_type"`
	Query      string     `json:"query"`
	Count      int        `json:"count"`
	NextCursor string     `json:"next_cursor,omitempty"`
	Results    []Record   `json:"results"`
}
