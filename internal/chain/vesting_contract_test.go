package chain

import (
	"math/big"
	"strings"
	"testing"

	"github.com/polartar/vtvl-engine/internal/vesting"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func wideAmount(shift uint) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), shift), 0)
}

func batchInputs(linear decimal.Decimal) *vesting.BatchClaimInputs {
	return &vesting.BatchClaimInputs{
		Recipients:       []string{"0:" + strings.Repeat("0", 63) + "1"},
		StartTimestamps:  []int64{1704067200},
		EndTimestamps:    []int64{1735689600},
		CliffTimestamps:  []int64{0},
		ReleaseIntervals: []int64{2592000},
		LinearAmounts:    []decimal.Decimal{linear},
		CliffAmounts:     []decimal.Decimal{decimal.Zero},
	}
}

func TestCreateClaimsBatchDataKeepsWideAmounts(t *testing.T) {
	contract := &VestingContractClient{address: "0:" + strings.Repeat("a", 64)}

	// amounts past 64 bits must survive encoding: truncating writes would
	// collapse both of these to the same body
	first, err := contract.CreateClaimsBatchData(batchInputs(wideAmount(70)))
	require.NoError(t, err)
	second, err := contract.CreateClaimsBatchData(batchInputs(wideAmount(71)))
	require.NoError(t, err)
	require.NotEqual(t, first.Body, second.Body)
}

func TestWithdrawAdminDataKeepsWideAmounts(t *testing.T) {
	contract := &VestingContractClient{address: "0:" + strings.Repeat("a", 64)}

	first, err := contract.WithdrawAdminData(wideAmount(70))
	require.NoError(t, err)
	second, err := contract.WithdrawAdminData(wideAmount(71))
	require.NoError(t, err)
	require.NotEqual(t, first.Body, second.Body)

	_, err = contract.WithdrawAdminData(decimal.NewFromInt(-1))
	require.Error(t, err)
}

func TestTransferDataKeepsWideAmounts(t *testing.T) {
	token := &TokenClient{master: "0:" + strings.Repeat("b", 64)}
	recipient := "0:" + strings.Repeat("0", 63) + "1"

	first, err := token.TransferData(recipient, wideAmount(70))
	require.NoError(t, err)
	second, err := token.TransferData(recipient, wideAmount(71))
	require.NoError(t, err)
	require.NotEqual(t, first.Body, second.Body)
}
