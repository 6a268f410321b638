package txservice

// assetUnit is the number of Liquid base units per whole unit of any of the
// three supported assets (spec glossary "Base units").
const assetUnit = uint64(100_000_000)

// Fee ladder boundaries, in cents. Per the resolved open question (the
// source draft disagreed with itself on the second boundary), the
// numerically consistent reading is used: 55 / 500 / 5000 BRL.
const (
	tierFlatBoundary = 5_500
	tier1Boundary    = 50_000
	tier2Boundary    = 500_000
)

// Fee rates, in basis points of 10000.
const (
	flatFeeBaseUnits = 200 // flat 2.00 BRL equivalent, applied pre-conversion
	tier1FeeBps      = 350
	tier2FeeBps      = 325
	tier3FeeBps      = 275
	referralFeeBps   = 50
)

// assetAmount converts a fiat amount to base units of the asset priced at
// priceCents (the asset's BRL price in cents, e.g. 100 for a 1.00 BRL
// asset). Multiplication happens before division throughout this file: the
// worst-case intermediate product is fiatCents(≤5·10^5) × 350 × assetUnit
// ≈ 1.75·10^16, comfortably under 2^63.
func assetAmount(fiatCents, priceCents uint64) uint64 {
	return fiatCents * assetUnit / priceCents
}

// computeFee returns the fee and, when hasReferral, the referral bonus,
// both in base units of the payout asset, for a transaction of fiatCents
// priced at priceCents.
func computeFee(fiatCents, priceCents uint64, hasReferral bool) (fee, bonus uint64) {
	switch {
	case fiatCents < tierFlatBoundary:
		fee = flatFeeBaseUnits * assetUnit / priceCents
	case fiatCents < tier1Boundary:
		fee = fiatCents * tier1FeeBps * assetUnit / 10_000 / priceCents
	case fiatCents < tier2Boundary:
		fee = fiatCents * tier2FeeBps * assetUnit / 10_000 / priceCents
	default:
		fee = fiatCents * tier3FeeBps * assetUnit / 10_000 / priceCents
	}

	if hasReferral {
		bonus = fiatCents * referralFeeBps * assetUnit / 10_000 / priceCents
		fee -= bonus
	}
	return fee, bonus
}

// priceCentsFromBRL rounds a BRL price (as returned by PriceAggregator,
// already spread-adjusted) to its cents representation for the integer fee
// math above.
func priceCentsFromBRL(priceBRL float64) uint64 {
	return uint64(priceBRL*100 + 0.5)
}
