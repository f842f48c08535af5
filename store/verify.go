package store

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ErrVerificationFailed marks a record whose signature or payload did not
// check out. Such records must never grant entitlement; callers log and
// skip them.
var ErrVerificationFailed = errors.New("store: transaction record failed verification")

// Gate validates signed transaction records before anything downstream
// trusts them. Verification is a pure check with no side effects.
type Gate struct {
	key    *ecdsa.PublicKey
	parser *jwt.Parser
}

// NewGate creates a gate that accepts ES256 records signed by the store's
// key.
func NewGate(key *ecdsa.PublicKey) *Gate {
	return &Gate{
		key: key,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		),
	}
}

type transactionClaims struct {
	ProductID      string           `json:"productId"`
	PurchaseDate   *jwt.NumericDate `json:"purchaseDate,omitempty"`
	ExpiresDate    *jwt.NumericDate `json:"expiresDate,omitempty"`
	RevocationDate *jwt.NumericDate `json:"revocationDate,omitempty"`
	jwt.RegisteredClaims
}

// Verify checks the record's JWS and returns the decoded transaction.
func (g *Gate) Verify(rec SignedRecord) (*Transaction, error) {
	var claims transactionClaims
	_, err := g.parser.ParseWithClaims(rec.JWS, &claims, func(t *jwt.Token) (any, error) {
		return g.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}
	if claims.ProductID == "" {
		return nil, fmt.Errorf("%w: record carries no product id", ErrVerificationFailed)
	}
	// The envelope transaction ID must match the signed payload, otherwise
	// a valid JWS could be replayed under another record's ID.
	if claims.ID != "" && rec.TransactionID != "" && claims.ID != rec.TransactionID {
		return nil, fmt.Errorf("%w: envelope id %q does not match signed id %q",
			ErrVerificationFailed, rec.TransactionID, claims.ID)
	}

	tx := &Transaction{
		TransactionID: rec.TransactionID,
		ProductID:     claims.ProductID,
	}
	if tx.TransactionID == "" {
		tx.TransactionID = claims.ID
	}
	if claims.PurchaseDate != nil {
		tx.PurchaseDate = claims.PurchaseDate.Time
	}
	tx.ExpiresAt = numericDate(claims.ExpiresDate)
	tx.RevokedAt = numericDate(claims.RevocationDate)
	return tx, nil
}

func numericDate(d *jwt.NumericDate) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
