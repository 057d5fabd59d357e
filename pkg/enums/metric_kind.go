package enums

import "fmt"

// MetricKind is the closed set of metric computations the metrics engine
// supports. Callers switch over it exhaustively; there is no dynamic
// name-based dispatch.
type MetricKind string

const (
	// MetricKindAggregate sums counted bid amounts within a scope.
	MetricKindAggregate MetricKind = "aggregate"
	// MetricKindTopBid is the single largest counted bid within a scope.
	MetricKindTopBid MetricKind = "top_bid"
	// MetricKindTopAggregate is the largest per-actor running total within a scope.
	MetricKindTopAggregate MetricKind = "top_aggregate"
	// MetricKindAverage is the mean counted bid amount; fractional until persisted.
	MetricKindAverage MetricKind = "average"
	// MetricKindRank is a bid's 1-based position in its media's counted
	// history ordered by creation time. Computed on demand, never stored.
	MetricKindRank MetricKind = "rank"
)

var validMetricKinds = []MetricKind{
	MetricKindAggregate,
	MetricKindTopBid,
	MetricKindTopAggregate,
	MetricKindAverage,
	MetricKindRank,
}

// String implements fmt.Stringer.
func (k MetricKind) String() string {
	return string(k)
}

// IsValid reports whether the kind is part of the closed set.
func (k MetricKind) IsValid() bool {
	for _, candidate := range validMetricKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseMetricKind converts raw input into a MetricKind.
func ParseMetricKind(value string) (MetricKind, error) {
	for _, candidate := range validMetricKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid metric kind %q", value)
}
