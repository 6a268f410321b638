package repository

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTierCapLadder(t *testing.T) {
	cases := []struct {
		count   int64
		amount  int64
		overCap bool
	}{
		{0, 25_001, true},
		{1, 75_001, true},
		{2, 150_001, true},
		{0, 25_000, false},
		{1, 75_000, false},
		{2, 150_000, false},
		{3, 25_000, false},
		{3, 500_000, false},
		{3, 500_001, true},
	}
	for _, c := range cases {
		over := c.amount > tierCapCents(c.count)
		require.Equal(t, c.overCap, over, "count=%d amount=%d", c.count, c.amount)
	}
}
