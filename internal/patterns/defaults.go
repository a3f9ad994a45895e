package patterns

import "github.com/miradorstack/firewall-mcp/internal/models"

// NewDefaultCatalog returns a catalog seeded with the built-in patterns.
func NewDefaultCatalog() *Catalog {
	c := NewCatalog()
	for category, list := range defaultPatterns() {
		c.categories[category] = list
	}
	return c
}

func defaultPatterns() map[string][]models.CorrelationPattern {
	flowsAlarms := []models.EntityType{models.EntityFlows, models.EntityAlarms}
	return map[string][]models.CorrelationPattern{
		"network": {
			{
				ID:          "network_flow_security",
				Name:        "Network flow security",
				Description: "Connect flows to alarms raised for the same connection endpoints.",
				Fields:      []string{"source_ip", "destination_ip", "protocol"},
				EntityTypes: flowsAlarms,
				Priority:    models.PriorityHigh,
				UseCase:     "Investigate which traffic triggered a security alarm",
			},
			{
				ID:          "device_traffic_profile",
				Name:        "Device traffic profile",
				Description: "Profile device traffic by protocol and direction.",
				Fields:      []string{"device_ip", "protocol", "direction"},
				EntityTypes: []models.EntityType{models.EntityFlows, models.EntityDevices},
				Priority:    models.PriorityMedium,
				UseCase:     "Spot devices with unusual traffic mixes",
			},
			{
				ID:          "geo_threat",
				Name:        "Geographic threat",
				Description: "Group flows and alarms by remote country and source host.",
				Fields:      []string{"country", "source_ip"},
				EntityTypes: flowsAlarms,
				Priority:    models.PriorityMedium,
				UseCase:     "Track activity toward high-risk regions",
			},
		},
		"security": {
			{
				ID:          "alarm_device_correlation",
				Name:        "Alarm to device",
				Description: "Attach alarms to the device inventory record.",
				Fields:      []string{"device_ip", "device_id"},
				EntityTypes: []models.EntityType{models.EntityAlarms, models.EntityDevices},
				Priority:    models.PriorityHigh,
				UseCase:     "Identify which devices raise the most alarms",
			},
			{
				ID:          "rule_enforcement",
				Name:        "Rule enforcement",
				Description: "Check whether flows hit destinations covered by rules.",
				Fields:      []string{"destination_ip", "protocol"},
				EntityTypes: []models.EntityType{models.EntityFlows, models.EntityRules},
				Priority:    models.PriorityHigh,
				UseCase:     "Verify that block rules are taking effect",
			},
			{
				ID:          "target_list_domain",
				Name:        "Target list domains",
				Description: "Relate target list domains to rules and alarms.",
				Fields:      []string{"domain", "category"},
				EntityTypes: []models.EntityType{models.EntityTargetLists, models.EntityRules, models.EntityAlarms},
				Priority:    models.PriorityMedium,
				UseCase:     "Find alarms for domains already on a target list",
			},
		},
		"temporal": {
			{
				ID:          "temporal_alarm_burst",
				Name:        "Alarm burst",
				Description: "Line up alarms and flows from one device in time.",
				Fields:      []string{"timestamp", "device_ip"},
				EntityTypes: []models.EntityType{models.EntityAlarms, models.EntityFlows},
				Priority:    models.PriorityMedium,
				UseCase:     "Reconstruct the traffic around an alarm spike",
			},
			{
				ID:          "network_segment",
				Name:        "Network segment",
				Description: "Scope activity to one network segment.",
				Fields:      []string{"network_id", "device_id"},
				EntityTypes: []models.EntityType{models.EntityDevices, models.EntityFlows, models.EntityAlarms},
				Priority:    models.PriorityLow,
				UseCase:     "Compare behaviour across network segments",
			},
		},
	}
}
