package purchases

import (
	"errors"

	"purchasekit/catalog"
	"purchasekit/store"
)

var (
	// ErrProductNotLoaded is returned by Purchase when the product has no
	// resolved store metadata yet.
	ErrProductNotLoaded = errors.New("purchases: product metadata not loaded")

	// ErrCatalogUnavailable means catalog initialization never completed
	// or failed. Distinct from an initialized catalog with zero products.
	ErrCatalogUnavailable = catalog.ErrUnavailable

	// ErrStoreUnreachable marks a network or service failure. Status
	// queries never surface it; they degrade to cached answers.
	ErrStoreUnreachable = store.ErrUnreachable

	// ErrVerificationFailed marks a rejected transaction record.
	ErrVerificationFailed = store.ErrVerificationFailed
)
