// Package store defines the contract with the external store/payment
// service: product metadata resolution, the purchase flow, the signed
// transaction streams, and the verification gate that guards them.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnreachable marks a network or service failure while talking to the
// store. Callers holding cached verdicts keep answering from them.
var ErrUnreachable = errors.New("store: service unreachable")

// PeriodUnit is the unit of a subscription billing period.
type PeriodUnit string

const (
	PeriodDay   PeriodUnit = "day"
	PeriodWeek  PeriodUnit = "week"
	PeriodMonth PeriodUnit = "month"
	PeriodYear  PeriodUnit = "year"
)

// SubscriptionPeriod is the billing cadence of a subscription product.
type SubscriptionPeriod struct {
	Unit  PeriodUnit
	Value int
}

func (p SubscriptionPeriod) months() float64 {
	switch p.Unit {
	case PeriodDay:
		return float64(p.Value) / 30
	case PeriodWeek:
		return float64(p.Value) * 7 / 30
	case PeriodMonth:
		return float64(p.Value)
	case PeriodYear:
		return float64(p.Value) * 12
	default:
		return 0
	}
}

// ProductInfo is the store's resolved metadata for one product.
type ProductInfo struct {
	ID          string
	DisplayName string
	PriceCents  int64
	Currency    string
	// Subscription is nil for one-time products.
	Subscription *SubscriptionPeriod
}

// PricePerMonth returns the monthly cost in cents for subscription
// products. The second return is false for one-time products or degenerate
// periods.
func (p ProductInfo) PricePerMonth() (float64, bool) {
	if p.Subscription == nil {
		return 0, false
	}
	months := p.Subscription.months()
	if months <= 0 {
		return 0, false
	}
	return float64(p.PriceCents) / months, true
}

// SignedRecord is one transaction record as emitted by the store service:
// an envelope transaction ID plus the signed payload in compact JWS form.
// The payload is not trusted until it passes the Gate.
type SignedRecord struct {
	TransactionID string
	JWS           string
}

// Transaction is the verified payload of a signed record.
type Transaction struct {
	TransactionID string
	ProductID     string
	PurchaseDate  time.Time
	// ExpiresAt is the store-side hard expiration (subscription renewal
	// boundary), when present.
	ExpiresAt *time.Time
	// RevokedAt is set when the store has revoked the purchase (refund,
	// family-sharing removal). A revoked transaction never entitles.
	RevokedAt *time.Time
}

// PurchaseOutcome classifies the result of a purchase flow.
type PurchaseOutcome int

const (
	// PurchaseCompleted means the flow finished and Record carries the
	// signed transaction.
	PurchaseCompleted PurchaseOutcome = iota
	// PurchaseCancelled means the user backed out. Not an error.
	PurchaseCancelled
	// PurchasePending means the purchase awaits external approval. Callers
	// should re-query entitlement later rather than assume success.
	PurchasePending
)

// PurchaseResult is the outcome of a purchase flow. Record is nil unless
// Outcome is PurchaseCompleted.
type PurchaseResult struct {
	Outcome PurchaseOutcome
	Record  *SignedRecord
}

// Client is the external store service. Implementations wrap the platform
// purchase API or a remote commerce backend.
type Client interface {
	// Products resolves metadata for the given product IDs. Unknown IDs are
	// omitted from the result, not an error.
	Products(ctx context.Context, ids []string) ([]ProductInfo, error)
	// Purchase runs the store's payment flow for one product.
	Purchase(ctx context.Context, productID string) (PurchaseResult, error)
	// Updates returns the live stream of newly completed signed records.
	// The channel stays open for the lifetime of ctx.
	Updates(ctx context.Context) (<-chan SignedRecord, error)
	// CurrentEntitlements enumerates all currently valid signed records.
	CurrentEntitlements(ctx context.Context) ([]SignedRecord, error)
	// Finish acknowledges a record so the store stops redelivering it.
	Finish(ctx context.Context, transactionID string) error
}
