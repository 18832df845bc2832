package normalize

import (
	"fmt"
	"strings"

	"github.com/pricestalk/pricestalk/internal/config"
)

// RateTable converts native-currency amounts into the reference currency
// using a static table. Rates never change during a run; refreshing them is
// the operator's responsibility, not the engine's.
type RateTable struct {
	reference string
	alt       string
	toRef     map[string]float64
	altPerRef float64
}

// NewRateTable builds a RateTable from configuration.
func NewRateTable(rc config.RatesConfig) *RateTable {
	toRef := make(map[string]float64, len(rc.ToReference))
	for cur, rate := range rc.ToReference {
		toRef[strings.ToUpper(cur)] = rate
	}
	return &RateTable{
		reference: strings.ToUpper(rc.Reference),
		alt:       strings.ToUpper(rc.Alt),
		toRef:     toRef,
		altPerRef: rc.AltPerReference,
	}
}

// Reference returns the reference currency code.
func (t *RateTable) Reference() string { return t.reference }

// Alt returns the secondary display currency code ("" when disabled).
func (t *RateTable) Alt() string { return t.alt }

// ToReference converts an amount in cur to the reference currency.
func (t *RateTable) ToReference(amount float64, cur string) (float64, error) {
	rate, ok := t.toRef[strings.ToUpper(cur)]
	if !ok {
		return 0, fmt.Errorf("no rate for currency %q", cur)
	}
	return amount * rate, nil
}

// Supports reports whether a currency has a configured rate.
func (t *RateTable) Supports(cur string) bool {
	_, ok := t.toRef[strings.ToUpper(cur)]
	return ok
}

// ToAlt converts a reference-currency amount to the Alt currency.
func (t *RateTable) ToAlt(refAmount float64) float64 {
	if t.alt == "" {
		return 0
	}
	return refAmount * t.altPerRef
}
