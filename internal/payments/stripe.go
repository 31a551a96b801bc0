// Package payments collects payment for paid event types via Stripe
// PaymentIntents. Free event types never touch this package.
package payments

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/paymentintent"
)

var ErrNotConfigured = errors.New("payments not configured")

type Intent struct {
	ID           string
	ClientSecret string
}

type Provider interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string, description string, receiptEmail string) (Intent, error)
	// CancelIntent voids an intent whose booking never materialized.
	CancelIntent(ctx context.Context, intentID string) error
}

type StripeProvider struct{}

func NewStripeProvider(secretKey string) *StripeProvider {
	stripe.Key = secretKey
	return &StripeProvider{}
}

func (p *StripeProvider) CreateIntent(ctx context.Context, amountCents int64, currency string, description string, receiptEmail string) (Intent, error) {
	if amountCents <= 0 {
		return Intent{}, fmt.Errorf("invalid amount %d", amountCents)
	}
	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(description),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if receiptEmail != "" {
		params.ReceiptEmail = stripe.String(receiptEmail)
	}
	params.Context = ctx

	pi, err := paymentintent.New(params)
	if err != nil {
		return Intent{}, err
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *StripeProvider) CancelIntent(ctx context.Context, intentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	_, err := paymentintent.Cancel(intentID, params)
	return err
}
