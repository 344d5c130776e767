package chain

import (
	"context"
	"testing"

	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/stretchr/testify/require"
	"github.com/tonkeeper/tongo/tlb"
)

func TestParseValue(t *testing.T) {
	value, err := parseValue("")
	require.NoError(t, err)
	require.Equal(t, defaultAttachAmount, value)

	value, err = parseValue("0")
	require.NoError(t, err)
	require.Equal(t, defaultAttachAmount, value)

	value, err = parseValue("123456789")
	require.NoError(t, err)
	require.Equal(t, tlb.Grams(123456789), value)

	_, err = parseValue("not-a-number")
	require.Error(t, err)
}

func TestGetTransactionHashIsStable(t *testing.T) {
	wallet := &MultisigWallet{}
	proposal := &multisig.Proposal{
		To:    "0:destination",
		Value: "0",
		Body:  []byte{0x01, 0x02, 0x03},
		Nonce: 7,
	}

	first, err := wallet.GetTransactionHash(context.Background(), proposal)
	require.NoError(t, err)
	second, err := wallet.GetTransactionHash(context.Background(), proposal)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, first, 64)

	// any change to the order changes the hash
	changed := *proposal
	changed.Nonce = 8
	other, err := wallet.GetTransactionHash(context.Background(), &changed)
	require.NoError(t, err)
	require.NotEqual(t, first, other)
}
