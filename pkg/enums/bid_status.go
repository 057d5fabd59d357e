package enums

import "fmt"

// BidStatus maps to the bid_status_enum enum in Postgres.
type BidStatus string

const (
	BidStatusRequested BidStatus = "requested"
	BidStatusActive    BidStatus = "active"
	BidStatusPlayed    BidStatus = "played"
	BidStatusVetoed    BidStatus = "vetoed"
	BidStatusRefunded  BidStatus = "refunded"
)

var validBidStatuses = []BidStatus{
	BidStatusRequested,
	BidStatusActive,
	BidStatusPlayed,
	BidStatusVetoed,
	BidStatusRefunded,
}

// CountedBidStatuses is the canonical set of statuses whose amounts count
// toward every aggregate, top, and average metric. A played bid's money has
// already been taken; vetoed and refunded bids are reversals and never count.
var CountedBidStatuses = []BidStatus{
	BidStatusActive,
	BidStatusPlayed,
}

// bidStatusOrder encodes the forward-only lifecycle. Transitions may only
// increase the ordinal; refunded is the terminal state.
var bidStatusOrder = map[BidStatus]int{
	BidStatusRequested: 0,
	BidStatusActive:    1,
	BidStatusPlayed:    2,
	BidStatusVetoed:    3,
	BidStatusRefunded:  4,
}

// String implements fmt.Stringer.
func (s BidStatus) String() string {
	return string(s)
}

// IsValid reports whether the status is part of the canonical lifecycle.
func (s BidStatus) IsValid() bool {
	_, ok := bidStatusOrder[s]
	return ok
}

// IsCounted reports whether bids in this status count toward aggregates.
func (s BidStatus) IsCounted() bool {
	for _, candidate := range CountedBidStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed. A vetoed bid
// is not terminal: its money can still move to refunded.
func (s BidStatus) IsTerminal() bool {
	return s == BidStatusRefunded
}

// CanTransitionTo reports whether moving from s to next respects the
// monotonic forward-only lifecycle.
func (s BidStatus) CanTransitionTo(next BidStatus) bool {
	from, ok := bidStatusOrder[s]
	if !ok {
		return false
	}
	to, ok := bidStatusOrder[next]
	if !ok {
		return false
	}
	if s.IsTerminal() {
		return false
	}
	return to > from
}

// ParseBidStatus converts raw input into a BidStatus.
func ParseBidStatus(value string) (BidStatus, error) {
	for _, candidate := range validBidStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid bid status %q", value)
}
