package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/tunetide/tunetide-backend/internal/wallet"
	pkgerrors "github.com/tunetide/tunetide-backend/pkg/errors"
)

type topUpProcessor interface {
	ProcessTopUp(ctx context.Context, event wallet.TopUpEvent) (*wallet.TopUpResult, error)
}

// Service translates verified Stripe events into wallet top-ups. Only
// checkout.session.completed moves money; every other event type is
// acknowledged and dropped so Stripe stops redelivering it.
type Service struct {
	processor topUpProcessor
}

func NewService(processor topUpProcessor) (*Service, error) {
	if processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "top-up processor required")
	}
	return &Service{processor: processor}, nil
}

func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode checkout session")
		}
		topUp, err := topUpFromSession(&session)
		if err != nil {
			return err
		}
		_, err = s.processor.ProcessTopUp(ctx, topUp)
		return err
	default:
		return nil
	}
}

// topUpFromSession extracts the top-up identity from a completed checkout
// session. The purchasing user travels in client_reference_id with a
// metadata fallback for sessions created before that field was set.
func topUpFromSession(session *stripe.CheckoutSession) (wallet.TopUpEvent, error) {
	if session == nil || session.ID == "" {
		return wallet.TopUpEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	if session.PaymentIntent == nil || session.PaymentIntent.ID == "" {
		return wallet.TopUpEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "payment intent missing from session")
	}

	rawUserID := session.ClientReferenceID
	if rawUserID == "" {
		rawUserID = session.Metadata["user_id"]
	}
	if rawUserID == "" {
		return wallet.TopUpEvent{}, pkgerrors.New(pkgerrors.CodeValidation, "session carries no user reference")
	}
	userID, err := uuid.Parse(rawUserID)
	if err != nil {
		return wallet.TopUpEvent{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "parsing session user reference")
	}

	return wallet.TopUpEvent{
		ProviderSessionID: session.ID,
		PaymentIntentID:   session.PaymentIntent.ID,
		UserID:            userID,
		GrossAmountPence:  session.AmountTotal,
	}, nil
}
