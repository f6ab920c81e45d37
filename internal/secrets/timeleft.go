package secrets

import (
	"fmt"

	"github.com/idone-su/inigma/internal/storage"
)

// TimeRemaining kinds.
const (
	KindPermanent = "permanent"
	KindExpired   = "expired"
	KindDays      = "days"
	KindHours     = "hours"
	KindMinutes   = "minutes"
)

// TimeRemaining is a display-only projection of a secret's remaining life.
// It must never be used to decide expiry; that decision is the raw ttl vs
// now comparison in the storage layer.
type TimeRemaining struct {
	Value   int64
	Display string
	Kind    string
}

// Remaining computes the human-readable time left for a secret at the given
// instant. Permanent secrets report value -1; a still-live secret under a
// minute reports "1 minute" rather than zero.
func Remaining(ttl, now int64) TimeRemaining {
	if ttl == storage.PermanentTTL {
		return TimeRemaining{Value: -1, Display: "Permanent", Kind: KindPermanent}
	}

	seconds := ttl - now
	if seconds <= 0 {
		return TimeRemaining{Value: 0, Display: "Expired", Kind: KindExpired}
	}

	if days := seconds / 86400; days >= 1 {
		return TimeRemaining{Value: days, Display: pluralize(days, "day"), Kind: KindDays}
	}
	if hours := seconds / 3600; hours >= 1 {
		return TimeRemaining{Value: hours, Display: pluralize(hours, "hour"), Kind: KindHours}
	}
	minutes := seconds / 60
	if minutes < 1 {
		minutes = 1
	}
	return TimeRemaining{Value: minutes, Display: pluralize(minutes, "minute"), Kind: KindMinutes}
}

func pluralize(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
