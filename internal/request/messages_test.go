package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatCooldown(t *testing.T) {
	tests := []struct {
		wait time.Duration
		want string
	}{
		{750 * time.Millisecond, "less than 1 second"},
		{time.Second, "1 second"},
		{65 * time.Second, "1 minute 5 seconds"},
		{62 * time.Minute, "1 hour 2 minutes"},
		{2*time.Hour + time.Second, "2 hours 1 second"},
		{10 * time.Minute, "10 minutes"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatCooldown(tt.wait))
		})
	}
}

func TestMessages(t *testing.T) {
	assert.Equal(t, "Request denied: Explicit tracks are not allowed.", ruleDeniedMessage("Explicit tracks are not allowed"))
	assert.Equal(t, "Request denied: You must wait 30 seconds.", cooldownMessage(30*time.Second))
}
