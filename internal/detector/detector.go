package detector

import (
	"time"

	"github.com/google/uuid"

	"availwatch/internal/status"
)

// Episode is one alert-worthy transition. It is never persisted and is consumed
// exactly once by the escalator.
type Episode struct {
	ID               string
	Previous         status.Status
	TriggeringStatus status.Status
	Count            int
	Urgent           bool
	DetectedAt       time.Time
}

// Detect returns an episode when moving from old to next is a significant upgrade.
func Detect(old, next status.Status, count int, urgent bool) (Episode, bool) {
	if !status.IsSignificantUpgrade(old, next) {
		return Episode{}, false
	}
	if count < 1 {
		count = 1
	}
	return Episode{
		ID:               uuid.NewString(),
		Previous:         old,
		TriggeringStatus: next,
		Count:            count,
		Urgent:           urgent,
		DetectedAt:       time.Now().UTC(),
	}, true
}
