package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeBucketKeys(t *testing.T) {
	stamp := time.Date(2026, time.March, 4, 5, 6, 7, 8, time.FixedZone("JST", 9*3600))
	utcNanos := "1772568367000000008"

	tests := []struct {
		prefix string
		want   string
	}{
		{"", "2026/03/03/20/" + utcNanos + ".json"},
		{"sink0", "sink0/2026/03/03/20/" + utcNanos + ".json"},
		{"/lab/sink0/", "lab/sink0/2026/03/03/20/" + utcNanos + ".json"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			assert.Equal(t, tt.want, TimeBucketKeys{Prefix: tt.prefix}.GenerateKey(stamp))
		})
	}
}
