package wallet

import (
	"context"

	stripesdk "github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
	"github.com/tunetide/tunetide-backend/pkg/stripe"
)

// SettlementResolver answers the one question the top-up path must never
// guess: what net amount actually settled for a payment. Implementations
// return an error rather than an estimate when the authoritative figure is
// unavailable.
type SettlementResolver interface {
	NetAmountPence(ctx context.Context, paymentIntentID string) (int64, error)
}

// StripeSettlementResolver reads the net amount off the balance transaction
// behind a payment intent's latest charge.
type StripeSettlementResolver struct {
	client *stripe.Client
}

// NewStripeSettlementResolver wraps the shared Stripe client.
func NewStripeSettlementResolver(client *stripe.Client) (*StripeSettlementResolver, error) {
	if client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement resolver requires a stripe client")
	}
	return &StripeSettlementResolver{client: client}, nil
}

func (r *StripeSettlementResolver) NetAmountPence(ctx context.Context, paymentIntentID string) (int64, error) {
	if paymentIntentID == "" {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}

	params := &stripesdk.PaymentIntentRetrieveParams{}
	params.AddExpand("latest_charge.balance_transaction")

	intent, err := r.client.API().V1PaymentIntents.Retrieve(ctx, paymentIntentID, params)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "retrieving payment intent")
	}
	if intent.LatestCharge == nil || intent.LatestCharge.BalanceTransaction == nil {
		return 0, pkgerrors.New(pkgerrors.CodeDependency, "settlement data not yet available for payment")
	}

	net := intent.LatestCharge.BalanceTransaction.Net
	if net <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "settled net amount is not positive")
	}
	return net, nil
}
