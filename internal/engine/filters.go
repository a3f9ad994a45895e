package engine

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/miradorstack/firewall-mcp/internal/fields"
	"github.com/miradorstack/firewall-mcp/internal/models"
	"github.com/miradorstack/firewall-mcp/internal/utils"
)

// networkScope restricts candidates to records with an IP inside prefix.
type networkScope struct {
	prefix netip.Prefix
}

// parseNetworkScope accepts a CIDR ("10.0.0.0/8") or a single address.
// An empty value disables scoping.
func parseNetworkScope(value string) (*networkScope, error) {
	const op = "parse network scope"
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if strings.Contains(value, "/") {
		prefix, err := netip.ParsePrefix(value)
		if err != nil {
			return nil, utils.NewValidationError(op, fmt.Sprintf("network_scope %q is not a valid CIDR", value))
		}
		return &networkScope{prefix: prefix.Masked()}, nil
	}
	addr, err := netip.ParseAddr(value)
	if err != nil {
		return nil, utils.NewValidationError(op, fmt.Sprintf("network_scope %q is not a valid IP or CIDR", value))
	}
	addr = addr.Unmap()
	return &networkScope{prefix: netip.PrefixFrom(addr, addr.BitLen())}, nil
}

func (s *networkScope) String() string {
	if s == nil {
		return ""
	}
	return s.prefix.String()
}

// admits reports whether any IP-typed field of record falls inside the scope.
// Candidate fields are the IP-kind correlation fields for the entity type, or
// every IP field in the catalog when none of the correlation fields are IPs.
func (s *networkScope) admits(catalog *fields.Catalog, entityType models.EntityType, candidates []fields.SemanticField, record models.Record) bool {
	if s == nil {
		return true
	}
	ipFields := make([]fields.SemanticField, 0, len(candidates))
	for _, name := range candidates {
		if kind, ok := catalog.Kind(entityType, name); ok && kind == fields.KindIP {
			ipFields = append(ipFields, name)
		}
	}
	if len(ipFields) == 0 {
		ipFields = catalog.IPFields(entityType)
	}
	for _, name := range ipFields {
		tokens, ok := catalog.Resolve(entityType, name, record)
		if !ok {
			continue
		}
		for _, token := range tokens {
			addr, err := netip.ParseAddr(token)
			if err == nil && s.prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

// temporalWindow limits the primary records a secondary record may correlate with.
type temporalWindow struct {
	width time.Duration
}

func newTemporalWindow(seconds *int) *temporalWindow {
	if seconds == nil {
		return nil
	}
	return &temporalWindow{width: time.Duration(*seconds) * time.Second}
}

// eligible returns the indices of primary records within the window of ts.
// Primaries without a resolvable timestamp are never eligible.
func (w *temporalWindow) eligible(ts time.Time, primaryTimes []time.Time, primaryHasTime []bool) map[int]struct{} {
	out := make(map[int]struct{})
	for i, pt := range primaryTimes {
		if !primaryHasTime[i] {
			continue
		}
		if utils.AbsDiff(ts, pt) <= w.width {
			out[i] = struct{}{}
		}
	}
	return out
}
