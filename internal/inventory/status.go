package inventory

import (
	"fmt"
	"math"
	"time"
)

// Status is the lifecycle bucket of a record derived from its expiry date.
type Status string

const (
	StatusExpired  Status = "Expired"
	StatusCritical Status = "Critical"
	StatusWarning  Status = "Warning"
	StatusGood     Status = "Good"
	StatusSafe     Status = "Safe"
	// StatusActive only appears under the coarse scheme.
	StatusActive Status = "Active"
)

// StatusScheme selects which bucket table a caller derives statuses with.
type StatusScheme string

const (
	// SchemeFine is the canonical five-bucket table used by live record creation.
	SchemeFine StatusScheme = "fine"
	// SchemeCoarse is the three-bucket table older backup restores used.
	SchemeCoarse StatusScheme = "coarse"
)

// ParseStatusScheme validates a configured scheme name.
func ParseStatusScheme(s string) (StatusScheme, error) {
	switch StatusScheme(s) {
	case "", SchemeFine:
		return SchemeFine, nil
	case SchemeCoarse:
		return SchemeCoarse, nil
	}
	return "", fmt.Errorf("inventory: unknown status scheme %q", s)
}

// Derive applies the scheme to expiry relative to now.
func (s StatusScheme) Derive(expiry, now time.Time) Status {
	if s == SchemeCoarse {
		return DeriveStatusCoarse(expiry, now)
	}
	return DeriveStatus(expiry, now)
}

// DaysUntil returns ceil((expiry - now) / 24h).
func DaysUntil(expiry, now time.Time) int {
	return int(math.Ceil(expiry.Sub(now).Hours() / 24))
}

// DeriveStatus maps expiry to the five-bucket scheme.
func DeriveStatus(expiry, now time.Time) Status {
	days := DaysUntil(expiry, now)
	switch {
	case days < 0:
		return StatusExpired
	case days <= 15:
		return StatusCritical
	case days <= 45:
		return StatusWarning
	case days <= 60:
		return StatusGood
	default:
		return StatusSafe
	}
}

// DeriveStatusCoarse maps expiry to the three-bucket scheme.
func DeriveStatusCoarse(expiry, now time.Time) Status {
	days := DaysUntil(expiry, now)
	switch {
	case days < 0:
		return StatusExpired
	case days <= 30:
		return StatusCritical
	default:
		return StatusActive
	}
}
