package enums

import "fmt"

// OutboxEventType identifies the domain event carried by an outbox row.
type OutboxEventType string

const (
	OutboxEventTypeTopUpCompleted OutboxEventType = "wallet.topup.completed"
	OutboxEventTypeRewardGranted  OutboxEventType = "rewards.granted"
	OutboxEventTypeEscrowClaimed  OutboxEventType = "escrow.claimed"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventTypeTopUpCompleted,
	OutboxEventTypeRewardGranted,
	OutboxEventTypeEscrowClaimed,
}

// IsValid reports whether the event type is recognized.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	OutboxAggregateTypeUser  OutboxAggregateType = "user"
	OutboxAggregateTypeBid   OutboxAggregateType = "bid"
	OutboxAggregateTypeMedia OutboxAggregateType = "media"
)

// OutboxStatus tracks publisher progress for an outbox row.
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
