package fields

import "github.com/miradorstack/firewall-mcp/internal/models"

// NewDefaultCatalog returns a catalog seeded with the built-in field table for
// every entity type exposed by the firewall API.
func NewDefaultCatalog() *Catalog {
	c := NewCatalog()
	for entityType, table := range defaultTables() {
		c.Merge(entityType, table)
	}
	return c
}

func path(p string, kind Kind) Field {
	return Field{Path: p, Kind: kind, Accessor: PathAccessor(p, kind)}
}

func defaultTables() map[models.EntityType]map[SemanticField]Field {
	return map[models.EntityType]map[SemanticField]Field{
		models.EntityFlows: {
			TimestampField:   path("ts", KindTime),
			"source_ip":      {Path: "source.ip", Kind: KindIP, Accessor: FirstOf(PathAccessor("source.ip", KindIP), PathAccessor("device.ip", KindIP))},
			"destination_ip": path("destination.ip", KindIP),
			"device_ip":      path("device.ip", KindIP),
			"device_id":      path("device.id", KindString),
			"device_name":    path("device.name", KindString),
			"network_id":     path("device.network.id", KindString),
			"protocol":       path("protocol", KindString),
			"direction":      path("direction", KindString),
			"blocked":        path("block", KindBool),
			"country":        path("region", KindString),
			"category":       path("category", KindString),
			"domain":         path("destination.name", KindString),
			"gid":            path("gid", KindString),
		},
		models.EntityAlarms: {
			TimestampField:   path("ts", KindTime),
			"device_ip":      path("device.ip", KindIP),
			"source_ip":      path("device.ip", KindIP),
			"destination_ip": path("remote.ip", KindIP),
			"remote_ip":      path("remote.ip", KindIP),
			"device_id":      path("device.id", KindString),
			"device_name":    path("device.name", KindString),
			"network_id":     path("device.network.id", KindString),
			"severity":       path("severity", KindString),
			"type":           path("type", KindString),
			"status":         path("status", KindString),
			"direction":      path("direction", KindString),
			"country":        path("remote.region", KindString),
			"category":       path("remote.category", KindString),
			"domain":         path("remote.domain", KindString),
			"gid":            path("gid", KindString),
		},
		models.EntityDevices: {
			TimestampField: path("lastSeen", KindTime),
			"device_ip":    path("ip", KindIP),
			"source_ip":    path("ip", KindIP),
			"device_id":    path("id", KindString),
			"mac":          path("mac", KindString),
			"device_name":  path("name", KindString),
			"network_id":   path("network.id", KindString),
			"vendor":       path("macVendor", KindString),
			"online":       path("online", KindBool),
			"gid":          path("gid", KindString),
		},
		models.EntityRules: {
			TimestampField: path("ts", KindTime),
			"action":       path("action", KindString),
			"direction":    path("direction", KindString),
			"status":       path("status", KindString),
			"protocol":     path("protocol", KindString),
			"gid":          path("gid", KindString),
			"target_type":  path("target.type", KindString),
			"target_value": path("target.value", KindString),
			"destination_ip": {
				Path:     "target.value",
				Kind:     KindIP,
				Accessor: When("target.type", []string{"ip", "net"}, PathAccessor("target.value", KindIP)),
			},
			"domain": {
				Path:     "target.value",
				Kind:     KindString,
				Accessor: When("target.type", []string{"domain"}, PathAccessor("target.value", KindString)),
			},
			"category": {
				Path:     "target.value",
				Kind:     KindString,
				Accessor: When("target.type", []string{"category"}, PathAccessor("target.value", KindString)),
			},
			"device_id": {
				Path:     "scope.value",
				Kind:     KindString,
				Accessor: When("scope.type", []string{"device"}, PathAccessor("scope.value", KindString)),
			},
			"network_id": {
				Path:     "scope.value",
				Kind:     KindString,
				Accessor: When("scope.type", []string{"network"}, PathAccessor("scope.value", KindString)),
			},
		},
		models.EntityTargetLists: {
			TimestampField: path("lastUpdated", KindTime),
			"name":         path("name", KindString),
			"owner":        path("owner", KindString),
			"category":     path("category", KindString),
			"target":       path("targets", KindString),
			"domain": {
				Path:     "targets",
				Kind:     KindString,
				Accessor: Filtered(PathAccessor("targets", KindString), func(t string) bool { return !IsIP(t) }),
			},
			"destination_ip": {
				Path:     "targets",
				Kind:     KindIP,
				Accessor: PathAccessor("targets", KindIP),
			},
		},
	}
}
