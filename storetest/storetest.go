// Package storetest provides a fake store service and a record signer for
// exercising purchasekit without a real payment backend.
//
// Example:
//
//	signer := storetest.NewSigner()
//	client := storetest.NewClient(signer)
//	client.AddProduct(store.ProductInfo{ID: "com.example.p1", PriceCents: 499})
//	svc, _ := purchases.New(purchases.Config{Client: client, VerifyKey: signer.PublicKey(), ...})
package storetest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"purchasekit/store"
)

// Signer issues ES256-signed transaction records that validate against its
// public key.
type Signer struct {
	key *ecdsa.PrivateKey
}

// NewSigner generates a fresh P-256 key pair.
func NewSigner() *Signer {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic("storetest: generate signing key: " + err.Error())
	}
	return &Signer{key: key}
}

// PublicKey returns the verification key matching this signer.
func (s *Signer) PublicKey() *ecdsa.PublicKey {
	return &s.key.PublicKey
}

// TransactionSpec describes a record to sign. A zero TransactionID gets a
// random one; a zero PurchaseDate defaults to now.
type TransactionSpec struct {
	TransactionID string
	ProductID     string
	PurchaseDate  time.Time
	ExpiresAt     *time.Time
	RevokedAt     *time.Time
}

// SignRecord produces a signed record for the spec.
func (s *Signer) SignRecord(spec TransactionSpec) store.SignedRecord {
	if spec.TransactionID == "" {
		spec.TransactionID = uuid.NewString()
	}
	if spec.PurchaseDate.IsZero() {
		spec.PurchaseDate = time.Now()
	}
	claims := jwt.MapClaims{
		"jti":          spec.TransactionID,
		"productId":    spec.ProductID,
		"purchaseDate": spec.PurchaseDate.Unix(),
	}
	if spec.ExpiresAt != nil {
		claims["expiresDate"] = spec.ExpiresAt.Unix()
	}
	if spec.RevokedAt != nil {
		claims["revocationDate"] = spec.RevokedAt.Unix()
	}
	jws, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.key)
	if err != nil {
		panic("storetest: sign record: " + err.Error())
	}
	return store.SignedRecord{TransactionID: spec.TransactionID, JWS: jws}
}

// Client is an in-memory store.Client with hooks for failure injection.
type Client struct {
	signer *Signer

	mu           sync.Mutex
	products     map[string]store.ProductInfo
	entitlements []store.SignedRecord
	finished     map[string]int
	updates      chan store.SignedRecord

	productCalls  int
	enumCalls     int
	productsErr   error
	enumerateErr  error
	purchaseFn    func(productID string) (store.PurchaseResult, error)
	enumerateHook func()
}

// NewClient creates a fake store whose purchase flow signs records with the
// given signer.
func NewClient(signer *Signer) *Client {
	return &Client{
		signer:   signer,
		products: make(map[string]store.ProductInfo),
		finished: make(map[string]int),
		updates:  make(chan store.SignedRecord, 16),
	}
}

// AddProduct registers resolvable product metadata.
func (c *Client) AddProduct(info store.ProductInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[info.ID] = info
}

// SetEntitlements replaces the full entitlement enumeration.
func (c *Client) SetEntitlements(recs ...store.SignedRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entitlements = append([]store.SignedRecord(nil), recs...)
}

// FailProducts makes Products return err (nil restores normal behavior).
func (c *Client) FailProducts(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.productsErr = err
}

// FailEnumeration makes CurrentEntitlements return err.
func (c *Client) FailEnumeration(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enumerateErr = err
}

// SetPurchaseFunc overrides the purchase flow, e.g. to simulate
// cancellation or a pending state.
func (c *Client) SetPurchaseFunc(fn func(productID string) (store.PurchaseResult, error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purchaseFn = fn
}

// SetEnumerateHook installs a callback invoked at the start of every
// CurrentEntitlements call, useful for orchestrating concurrency tests.
func (c *Client) SetEnumerateHook(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.enumerateHook = fn
}

// EmitUpdate pushes a record onto the live update stream.
func (c *Client) EmitUpdate(rec store.SignedRecord) {
	c.updates <- rec
}

// Finished reports how many times a transaction was finalized.
func (c *Client) Finished(transactionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished[transactionID]
}

// ProductCalls reports how many times Products was invoked.
func (c *Client) ProductCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.productCalls
}

// EnumerateCalls reports how many times CurrentEntitlements was invoked.
func (c *Client) EnumerateCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enumCalls
}

func (c *Client) Products(ctx context.Context, ids []string) ([]store.ProductInfo, error) {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.productCalls++
	if c.productsErr != nil {
		return nil, c.productsErr
	}
	var out []store.ProductInfo
	for _, id := range ids {
		if info, ok := c.products[id]; ok {
			out = append(out, info)
		}
	}
	return out, nil
}

func (c *Client) Purchase(ctx context.Context, productID string) (store.PurchaseResult, error) {
	_ = ctx
	c.mu.Lock()
	fn := c.purchaseFn
	c.mu.Unlock()
	if fn != nil {
		return fn(productID)
	}

	rec := c.signer.SignRecord(TransactionSpec{ProductID: productID})
	c.mu.Lock()
	c.entitlements = append(c.entitlements, rec)
	c.mu.Unlock()
	return store.PurchaseResult{Outcome: store.PurchaseCompleted, Record: &rec}, nil
}

func (c *Client) Updates(ctx context.Context) (<-chan store.SignedRecord, error) {
	_ = ctx
	return c.updates, nil
}

func (c *Client) CurrentEntitlements(ctx context.Context) ([]store.SignedRecord, error) {
	_ = ctx
	c.mu.Lock()
	hook := c.enumerateHook
	c.enumCalls++
	err := c.enumerateErr
	recs := append([]store.SignedRecord(nil), c.entitlements...)
	c.mu.Unlock()

	if hook != nil {
		hook()
	}
	if err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) Finish(ctx context.Context, transactionID string) error {
	_ = ctx
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finished[transactionID]++
	return nil
}
