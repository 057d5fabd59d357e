package enums

import "fmt"

// MetricScope identifies the (level, entity-set) pair a metric ranges over.
type MetricScope string

const (
	// MetricScopeGlobalMedia ranges over every counted bid on one media item.
	MetricScopeGlobalMedia MetricScope = "global_media"
	// MetricScopePartyMedia ranges over one media item within one party.
	MetricScopePartyMedia MetricScope = "party_media"
	// MetricScopeParty ranges over every counted bid inside one party.
	MetricScopeParty MetricScope = "party"
	// MetricScopeUserMedia ranges over one actor's counted bids on one media item.
	MetricScopeUserMedia MetricScope = "user_media"
)

var validMetricScopes = []MetricScope{
	MetricScopeGlobalMedia,
	MetricScopePartyMedia,
	MetricScopeParty,
	MetricScopeUserMedia,
}

// String implements fmt.Stringer.
func (s MetricScope) String() string {
	return string(s)
}

// IsValid reports whether the scope is recognized.
func (s MetricScope) IsValid() bool {
	for _, candidate := range validMetricScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseMetricScope converts raw input into a MetricScope.
func ParseMetricScope(value string) (MetricScope, error) {
	for _, candidate := range validMetricScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid metric scope %q", value)
}
