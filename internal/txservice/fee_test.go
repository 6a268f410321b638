package txservice

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFeeLessThanAssetEquivalentAndRecipientSumExact(t *testing.T) {
	// Below 201 cents the flat 2.00 BRL fee meets or exceeds the gross
	// asset amount; the payout path refuses those terminally, so the
	// fee-strictly-less property is quantified over the payable range.
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 5000; i++ {
		fiatCents := uint64(rng.Intn(500_000-200) + 201)
		priceCents := uint64(rng.Intn(10_000_000) + 1)
		hasReferral := rng.Intn(2) == 0

		gross := assetAmount(fiatCents, priceCents)
		fee, bonus := computeFee(fiatCents, priceCents, hasReferral)

		require.Less(t, fee, gross, "fiatCents=%d priceCents=%d", fiatCents, priceCents)
		user := gross - fee - bonus
		require.Equal(t, gross, user+bonus+fee, "fiatCents=%d priceCents=%d referral=%v", fiatCents, priceCents, hasReferral)
	}
}

// TestFlatFeeSwallowsTinyDeposits pins the boundary the payout path guards
// against: at or below 2.00 BRL the flat fee eats the whole payout.
func TestFlatFeeSwallowsTinyDeposits(t *testing.T) {
	for _, fiatCents := range []uint64{1, 100, 200} {
		gross := assetAmount(fiatCents, 100)
		fee, _ := computeFee(fiatCents, 100, false)
		require.GreaterOrEqual(t, fee, gross, "fiatCents=%d", fiatCents)
	}
}

// 100.00 BRL against a 1.00 BRL asset lands in the 3.50% tier.
func TestMidTierFeeDepix(t *testing.T) {
	fee, bonus := computeFee(10_000, 100, false)
	require.Equal(t, uint64(350_000_000), fee)
	require.Equal(t, uint64(0), bonus)
}

// 1000.00 BRL of L-BTC at 500k BRL with a referral: the 0.5% bonus is
// carved out of the fee.
func TestReferralDiscountedFee(t *testing.T) {
	priceCents := priceCentsFromBRL(500_000.0)
	require.Equal(t, uint64(50_000_000), priceCents)

	gross := assetAmount(100_000, priceCents)
	require.Equal(t, uint64(200_000), gross)

	fee, bonus := computeFee(100_000, priceCents, true)
	require.Equal(t, uint64(5_500), fee)
	require.Equal(t, uint64(1_000), bonus)

	userAmount := gross - fee - bonus
	require.Equal(t, uint64(193_500), userAmount)
}
