package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GenerateUUIDWithSuffix generates a UUID with a given module name as a prefix.
// This is useful for creating unique identifiers with context-specific prefixes.
func GenerateUUIDWithSuffix(module string) string {
	id := uuid.New()
	uuidStr := id.String()
	idWithSuffix := fmt.Sprintf("%s_%s", module, uuidStr)
	return idWithSuffix
}

// Clock supplies the current time to engine components. Injected everywhere a
// decision depends on "now" so that time-windowed logic is deterministic in
// tests.
type Clock func() time.Time

// SystemClock is the production clock.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// MinorUnitsToDecimal converts an authoritative minor-unit amount into its
// derived decimal representation at two decimal places.
func MinorUnitsToDecimal(minorUnits int64) decimal.Decimal {
	return decimal.New(minorUnits, -2)
}
