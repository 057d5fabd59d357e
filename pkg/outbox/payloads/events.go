package payloads

import "github.com/google/uuid"

// TopUpCompletedEvent notifies downstream consumers (receipt email, audit
// hash storage) that a wallet top-up committed. These consumers are
// non-critical: the financial unit has already committed by the time this
// event is published.
type TopUpCompletedEvent struct {
	UserID            uuid.UUID `json:"userId"`
	WalletTxID        uuid.UUID `json:"walletTransactionId"`
	ProviderSessionID string    `json:"providerSessionId"`
	AmountPence       int64     `json:"amountPence"`
	BalanceAfterPence int64     `json:"balanceAfterPence"`
}

// RewardGrantedEvent records a discovery reward credit.
type RewardGrantedEvent struct {
	BidID     uuid.UUID `json:"bidId"`
	ActorID   uuid.UUID `json:"actorId"`
	MediaID   uuid.UUID `json:"mediaId"`
	TuneBytes float64   `json:"tuneBytes"`
	Rank      int       `json:"rank"`
}

// EscrowClaimedEvent records the transfer of parked allocations to a newly
// registered artist.
type EscrowClaimedEvent struct {
	UserID          uuid.UUID `json:"userId"`
	ArtistName      string    `json:"artistName"`
	AllocationCount int       `json:"allocationCount"`
	TotalPence      int64     `json:"totalPence"`
}
