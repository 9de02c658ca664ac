package timezone

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMidnight(t *testing.T) {
	cases := []struct {
		in     time.Time
		expect time.Time
	}{
		{
			in:     time.Date(2024, time.August, 26, 13, 45, 12, 999, Location),
			expect: time.Date(2024, time.August, 26, 0, 0, 0, 0, Location),
		},
		{
			in:     time.Date(2024, time.August, 26, 0, 0, 0, 0, Location),
			expect: time.Date(2024, time.August, 26, 0, 0, 0, 0, Location),
		},
		{
			// 23:30 UTC is already the next day in Berlin
			in:     time.Date(2024, time.August, 26, 23, 30, 0, 0, time.UTC),
			expect: time.Date(2024, time.August, 27, 0, 0, 0, 0, Location),
		},
	}
	for _, test := range cases {
		require.Equal(t, test.expect, Midnight(test.in))
	}
}
