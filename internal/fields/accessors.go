package fields

import (
	"encoding/json"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

// Accessor extracts normalised comparison tokens for one semantic field from a
// record. It returns false when the record carries no usable value.
type Accessor func(models.Record) ([]string, bool)

// Lookup walks a dotted path ("device.network.id") through nested maps.
func Lookup(record models.Record, path string) (any, bool) {
	if record == nil || path == "" {
		return nil, false
	}
	var current any = map[string]any(record)
	for _, segment := range strings.Split(path, ".") {
		var next any
		var ok bool
		switch node := current.(type) {
		case map[string]any:
			next, ok = node[segment]
		case models.Record:
			next, ok = node[segment]
		default:
			return nil, false
		}
		if !ok || next == nil {
			return nil, false
		}
		current = next
	}
	return current, true
}

// PathAccessor reads the value at path and normalises it according to kind.
func PathAccessor(path string, kind Kind) Accessor {
	return func(record models.Record) ([]string, bool) {
		value, ok := Lookup(record, path)
		if !ok {
			return nil, false
		}
		return normalise(value, kind)
	}
}

// FirstOf returns the tokens of the first accessor that resolves.
func FirstOf(accessors ...Accessor) Accessor {
	return func(record models.Record) ([]string, bool) {
		for _, accessor := range accessors {
			if tokens, ok := accessor(record); ok {
				return tokens, true
			}
		}
		return nil, false
	}
}

// When resolves inner only if the value at condPath equals one of the wanted values.
func When(condPath string, wanted []string, inner Accessor) Accessor {
	return func(record models.Record) ([]string, bool) {
		value, ok := Lookup(record, condPath)
		if !ok {
			return nil, false
		}
		got, ok := normalise(value, KindString)
		if !ok || len(got) == 0 {
			return nil, false
		}
		for _, w := range wanted {
			if got[0] == strings.ToLower(w) {
				return inner(record)
			}
		}
		return nil, false
	}
}

// Filtered keeps only tokens accepted by keep, e.g. IP-looking list entries.
func Filtered(inner Accessor, keep func(string) bool) Accessor {
	return func(record models.Record) ([]string, bool) {
		tokens, ok := inner(record)
		if !ok {
			return nil, false
		}
		kept := tokens[:0:0]
		for _, token := range tokens {
			if keep(token) {
				kept = append(kept, token)
			}
		}
		return kept, len(kept) > 0
	}
}

// IsIP reports whether token parses as an IP address.
func IsIP(token string) bool {
	_, err := netip.ParseAddr(token)
	return err == nil
}

// ParseTime interprets epoch numbers (seconds or milliseconds) and ISO-8601 strings.
func ParseTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case float64:
		return utils.FromEpoch(v), v > 0
	case int:
		return utils.FromEpoch(float64(v)), v > 0
	case int64:
		return utils.FromEpoch(float64(v)), v > 0
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return utils.FromEpoch(f), f > 0
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return utils.FromEpoch(f), f > 0
		}
		t, err := utils.ParseRFC3339(v)
		if err != nil {
			return time.Time{}, false
		}
		return t, true
	case time.Time:
		return v, !v.IsZero()
	default:
		return time.Time{}, false
	}
}

func normalise(value any, kind Kind) ([]string, bool) {
	if list, ok := value.([]any); ok {
		tokens := make([]string, 0, len(list))
		for _, item := range list {
			if itemTokens, ok := normaliseScalar(item, kind); ok {
				tokens = append(tokens, itemTokens)
			}
		}
		return tokens, len(tokens) > 0
	}
	if list, ok := value.([]string); ok {
		tokens := make([]string, 0, len(list))
		for _, item := range list {
			if token, ok := normaliseScalar(item, kind); ok {
				tokens = append(tokens, token)
			}
		}
		return tokens, len(tokens) > 0
	}
	token, ok := normaliseScalar(value, kind)
	if !ok {
		return nil, false
	}
	return []string{token}, true
}

func normaliseScalar(value any, kind Kind) (string, bool) {
	if kind == KindTime {
		t, ok := ParseTime(value)
		if !ok {
			return "", false
		}
		return strconv.FormatInt(t.Unix(), 10), true
	}

	var token string
	switch v := value.(type) {
	case string:
		token = strings.ToLower(strings.TrimSpace(v))
	case bool:
		token = strconv.FormatBool(v)
	case float64:
		token = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		token = strconv.Itoa(v)
	case int64:
		token = strconv.FormatInt(v, 10)
	case json.Number:
		token = v.String()
	default:
		return "", false
	}
	if token == "" {
		return "", false
	}

	if kind == KindIP {
		addr, err := netip.ParseAddr(token)
		if err != nil {
			return "", false
		}
		return addr.Unmap().String(), true
	}
	return token, true
}
