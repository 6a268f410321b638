// Package assetid holds the constant table of Liquid confidential asset
// tags the dealer knows how to price and pay out.
package assetid

import (
	"encoding/hex"
	"fmt"
)

// Asset identifies one of the three Liquid confidential assets the dealer
// deals in.
type Asset int

const (
	// DEPIX is the BRL-pegged stablecoin, the dealer's primary inventory
	// asset and the fiat peg (its price is always 1.0 BRL).
	DEPIX Asset = iota
	// LBTC is Liquid Bitcoin.
	LBTC
	// USDt is Tether on Liquid.
	USDt
)

func (a Asset) String() string {
	switch a {
	case DEPIX:
		return "DEPIX"
	case LBTC:
		return "L-BTC"
	case USDt:
		return "USDt"
	default:
		return "UNKNOWN"
	}
}

// hexTags is the constant 64-hex-char Liquid mainnet asset id for each
// supported asset.
var hexTags = map[Asset]string{
	DEPIX: "02f22f8d9c76ab41661a2729e4752e2c5d1a263012141b86ea40af21be1bc51f",
	LBTC:  "6f0279e9ed041c3d710a9f57d0c02928416460c4b722ae3457a11eec381c526d",
	USDt:  "ce091c998b83c78bb71a632313ba3760f1763d9cfcffae02258ffa9865a37bd2",
}

var tagsToAsset = func() map[string]Asset {
	m := make(map[string]Asset, len(hexTags))
	for a, h := range hexTags {
		m[h] = a
	}
	return m
}()

// ErrUnsupportedAsset is returned by FromHex for an id not in the table.
var ErrUnsupportedAsset = fmt.Errorf("unsupported asset")

// Hex returns the 64-hex-char asset id for a known asset.
func Hex(a Asset) (string, error) {
	h, ok := hexTags[a]
	if !ok {
		return "", ErrUnsupportedAsset
	}
	return h, nil
}

// MustHex panics if a is not a known asset; used at package-init time for
// constants that must be valid.
func MustHex(a Asset) string {
	h, err := Hex(a)
	if err != nil {
		panic(err)
	}
	return h
}

// FromHex resolves a 64-hex-char asset id to its Asset, or
// ErrUnsupportedAsset if the id is unknown or malformed.
func FromHex(h string) (Asset, error) {
	if _, err := hex.DecodeString(h); err != nil || len(h) != 64 {
		return 0, ErrUnsupportedAsset
	}
	a, ok := tagsToAsset[h]
	if !ok {
		return 0, ErrUnsupportedAsset
	}
	return a, nil
}

// DepixHex is the only asset id the HTTP ingress accepts for new
// deposits today.
var DepixHex = MustHex(DEPIX)
