package assetid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	for _, a := range []Asset{DEPIX, LBTC, USDt} {
		h, err := Hex(a)
		require.NoError(t, err)
		require.Len(t, h, 64)

		back, err := FromHex(h)
		require.NoError(t, err)
		require.Equal(t, a, back)
	}
}

func TestFromHexRejectsUnknownAndMalformed(t *testing.T) {
	_, err := FromHex("not-hex")
	require.ErrorIs(t, err, ErrUnsupportedAsset)

	_, err = FromHex("ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00ff00")
	require.ErrorIs(t, err, ErrUnsupportedAsset)
}
