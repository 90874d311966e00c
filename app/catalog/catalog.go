// Package catalog maps purchased product ids to the credit amounts they
// grant. The mapping is configuration, loaded once at startup and immutable
// afterwards, so lookups need no synchronization.
package catalog

import (
	"errors"
	"fmt"
)

var ErrUnknownProduct = errors.New("unknown product")

type Catalog struct {
	credits map[string]int64
}

func New(productCredits map[string]int64) (*Catalog, error) {
	if len(productCredits) == 0 {
		return nil, errors.New("catalog requires at least one product rule")
	}

	credits := make(map[string]int64, len(productCredits))
	for productID, amount := range productCredits {
		if productID == "" {
			return nil, errors.New("catalog product id must not be empty")
		}
		if amount <= 0 {
			return nil, fmt.Errorf("catalog entry %q must grant a positive credit amount", productID)
		}
		credits[productID] = amount
	}

	return &Catalog{credits: credits}, nil
}

// Lookup returns the credit amount granted by a purchase of the given
// product, or ErrUnknownProduct if the product is not configured.
func (c *Catalog) Lookup(productID string) (int64, error) {
	amount, ok := c.credits[productID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}
	return amount, nil
}

func (c *Catalog) Size() int {
	return len(c.credits)
}
