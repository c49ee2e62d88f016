package request

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jukebox-queue-system/pkg/apperr"
)

const (
	duplicateMessage = "Request denied: This track is already in the queue."
	successMessage   = "Request was successfully added to the queue!"
)

func failureMessage(err error) string {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return "Request failed: Track not found."
	case errors.Is(err, apperr.ErrBadRequest):
		return "Request failed: No track was given."
	case errors.Is(err, apperr.ErrConflict):
		return "Request failed: The queue is busy, please try again."
	default:
		return "Request failed: Something went wrong, please try again later."
	}
}

func ruleDeniedMessage(description string) string {
	return fmt.Sprintf("Request denied: %s.", description)
}

func cooldownMessage(wait time.Duration) string {
	return fmt.Sprintf("Request denied: You must wait %s.", FormatCooldown(wait))
}

// FormatCooldown renders a wait as "1 hour 2 minutes 5 seconds", leaving out
// zero parts. Anything under a second is "less than 1 second".
func FormatCooldown(d time.Duration) string {
	if d < time.Second {
		return "less than 1 second"
	}

	hours := int64(d / time.Hour)
	minutes := int64(d/time.Minute) % 60
	seconds := int64(d/time.Second) % 60

	var parts []string
	for _, p := range []struct {
		n    int64
		unit string
	}{
		{hours, "hour"},
		{minutes, "minute"},
		{seconds, "second"},
	} {
		if p.n == 0 {
			continue
		}
		part := fmt.Sprintf("%d %s", p.n, p.unit)
		if p.n != 1 {
			part += "s"
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}
