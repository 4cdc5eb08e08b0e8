package permission

import (
	"fmt"
	"time"
)

// TTL maps risk levels to request time-to-live; lower risk lives longer.
type TTL map[Risk]time.Duration

// DefaultTTL returns the built-in TTL table.
func DefaultTTL() TTL {
	return TTL{
		Low:      24 * time.Hour,
		Medium:   8 * time.Hour,
		High:     4 * time.Hour,
		Critical: time.Hour,
	}
}

// For returns the TTL for risk, falling back to the Critical TTL, the most conservative.
func (t TTL) For(risk Risk) time.Duration {
	if d, ok := t[risk]; ok && d > 0 {
		return d
	}
	if d, ok := t[Critical]; ok && d > 0 {
		return d
	}
	return time.Hour
}

// Validate checks that all TTLs are positive and do not grow with risk.
func (t TTL) Validate() error {
	var prev time.Duration
	for i, risk := range Risks {
		d, ok := t[risk]
		if !ok {
			continue
		}
		if d <= 0 {
			return fmt.Errorf("ttl for %v must be > 0", risk)
		}
		if i > 0 && prev > 0 && d > prev {
			return fmt.Errorf("ttl for %v (%v) exceeds ttl of lower risk (%v)", risk, d, prev)
		}
		prev = d
	}
	return nil
}
