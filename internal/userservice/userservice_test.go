package userservice

import (
	"context"
	"testing"

	"github.com/moozedealer/dealer/internal/repository"
	"github.com/stretchr/testify/require"
)

// fakeRepo implements repository.Repository with just enough behavior to
// drive GetAllowedSpending; every other method panics if called.
type fakeRepo struct {
	repository.Repository
	count int64
	daily int64
}

func (f *fakeRepo) GetTransactionCount(ctx context.Context, userID string, status repository.TxStatus) (int64, error) {
	return f.count, nil
}

func (f *fakeRepo) GetDailySpending(ctx context.Context, userID string) (int64, error) {
	return f.daily, nil
}

func TestGetAllowedSpendingTiers(t *testing.T) {
	cases := []struct {
		count, daily, want int64
	}{
		{0, 0, 25000},
		{1, 0, 75000},
		{2, 0, 150000},
		{3, 0, 500000},
		{0, 20000, 5000},
		{2, 200000, 0}, // already over the tier cap: clamped to zero, never negative
	}
	for _, c := range cases {
		svc := New(&fakeRepo{count: c.count, daily: c.daily})
		got, err := svc.GetAllowedSpending(context.Background(), "u1")
		require.NoError(t, err)
		require.Equal(t, c.want, got)
	}
}
