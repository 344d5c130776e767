package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/polartar/vtvl-engine/internal/lifecycle"
	"github.com/polartar/vtvl-engine/internal/logger"
	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/polartar/vtvl-engine/internal/vesting"
	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
)

// vesting contract opcodes
const (
	opCreateClaimsBatch = 0x63620001
	opRevokeClaim       = 0x72760002
	opWithdrawAdmin     = 0x77640003
)

// amountBits matches the read path: token amounts may exceed 64 bits.
const amountBits = 128

func writeAmount(cell *boc.Cell, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("negative token amount %s", amount)
	}
	return cell.WriteBigUint(amount.BigInt(), amountBits)
}

// VestingContractClient talks to the organization's vesting contract.
type VestingContractClient struct {
	client  *Client
	address string
}

func NewVestingContractClient(client *Client, address string) (*VestingContractClient, error) {
	if _, err := ton.ParseAccountID(address); err != nil {
		return nil, fmt.Errorf("parse vesting contract address: %w", err)
	}
	return &VestingContractClient{
		client:  client,
		address: address,
	}, nil
}

func (v *VestingContractClient) Address() string {
	return v.address
}

// Deploy registers the organization's vesting contract. The contract itself
// is deployed by the dashboard's factory; this verifies the configured
// account is live and actually is a vesting contract before the engine
// starts relying on it.
func (v *VestingContractClient) Deploy(ctx context.Context, organizationID string) (string, error) {
	logger.Debug("verifying vesting contract account...", zap.String("address", v.address))

	account, err := withRateLimitRetry(
		func() (*tonapi.Account, error) {
			return v.client.api.GetAccount(ctx, tonapi.GetAccountParams{
				AccountID: v.address,
			})
		})
	if err != nil {
		return "", fmt.Errorf("get vesting contract account: %w", err)
	}

	logger.Debug("vesting contract info", zap.Int64("balance", account.GetBalance()))

	// a contract that answers its reserve get method is initialized
	if _, err := v.NumTokensReservedForVesting(ctx); err != nil {
		return "", fmt.Errorf("account %s is not an initialized vesting contract: %w", v.address, err)
	}

	logger.Info("vesting contract verified",
		zap.String("organization", organizationID),
		zap.String("address", v.address),
	)
	return v.address, nil
}

func (v *VestingContractClient) NumTokensReservedForVesting(ctx context.Context) (decimal.Decimal, error) {
	result, err := v.client.execGetMethod(ctx, v.address, "num_tokens_reserved_for_vesting")
	if err != nil {
		return decimal.Zero, err
	}
	return parseStackAmount(result, 0)
}

// CreateClaimsBatchData encodes one batch claim call: a header cell with
// the recipient count and a chained list of per-recipient claim cells.
func (v *VestingContractClient) CreateClaimsBatchData(inputs *vesting.BatchClaimInputs) (multisig.TxData, error) {
	var next *boc.Cell
	for i := len(inputs.Recipients) - 1; i >= 0; i-- {
		recipientID, err := ton.ParseAccountID(inputs.Recipients[i])
		if err != nil {
			return multisig.TxData{}, fmt.Errorf("parse recipient address: %w", err)
		}

		cell := boc.NewCell()
		if err := tlb.Marshal(cell, recipientID.ToMsgAddress()); err != nil {
			return multisig.TxData{}, err
		}
		if err := cell.WriteUint(uint64(inputs.StartTimestamps[i]), 64); err != nil {
			return multisig.TxData{}, err
		}
		if err := cell.WriteUint(uint64(inputs.EndTimestamps[i]), 64); err != nil {
			return multisig.TxData{}, err
		}
		if err := cell.WriteUint(uint64(inputs.CliffTimestamps[i]), 64); err != nil {
			return multisig.TxData{}, err
		}
		if err := cell.WriteUint(uint64(inputs.ReleaseIntervals[i]), 32); err != nil {
			return multisig.TxData{}, err
		}
		if err := writeAmount(cell, inputs.LinearAmounts[i]); err != nil {
			return multisig.TxData{}, err
		}
		if err := writeAmount(cell, inputs.CliffAmounts[i]); err != nil {
			return multisig.TxData{}, err
		}
		if next != nil {
			if err := cell.AddRef(next); err != nil {
				return multisig.TxData{}, err
			}
		}
		next = cell
	}

	root := boc.NewCell()
	if err := root.WriteUint(opCreateClaimsBatch, 32); err != nil {
		return multisig.TxData{}, err
	}
	if err := root.WriteUint(uint64(len(inputs.Recipients)), 16); err != nil {
		return multisig.TxData{}, err
	}
	if next != nil {
		if err := root.AddRef(next); err != nil {
			return multisig.TxData{}, err
		}
	}

	body, err := root.ToBoc()
	if err != nil {
		return multisig.TxData{}, err
	}
	return multisig.TxData{To: v.address, Body: body}, nil
}

func (v *VestingContractClient) RevokeClaimData(recipient string) (multisig.TxData, error) {
	recipientID, err := ton.ParseAccountID(recipient)
	if err != nil {
		return multisig.TxData{}, fmt.Errorf("parse recipient address: %w", err)
	}

	cell := boc.NewCell()
	if err := cell.WriteUint(opRevokeClaim, 32); err != nil {
		return multisig.TxData{}, err
	}
	if err := tlb.Marshal(cell, recipientID.ToMsgAddress()); err != nil {
		return multisig.TxData{}, err
	}

	body, err := cell.ToBoc()
	if err != nil {
		return multisig.TxData{}, err
	}
	return multisig.TxData{To: v.address, Body: body}, nil
}

func (v *VestingContractClient) WithdrawAdminData(amount decimal.Decimal) (multisig.TxData, error) {
	cell := boc.NewCell()
	if err := cell.WriteUint(opWithdrawAdmin, 32); err != nil {
		return multisig.TxData{}, err
	}
	if err := writeAmount(cell, amount); err != nil {
		return multisig.TxData{}, err
	}

	body, err := cell.ToBoc()
	if err != nil {
		return multisig.TxData{}, err
	}
	return multisig.TxData{To: v.address, Body: body}, nil
}

func (v *VestingContractClient) TransactionOutcome(ctx context.Context, hash string) (lifecycle.TxOutcome, error) {
	return v.client.TransactionOutcome(ctx, hash)
}

// parseStackAmount reads a token amount that may exceed 64 bits.
func parseStackAmount(result *tonapi.MethodExecutionResult, index int) (decimal.Decimal, error) {
	stack := result.GetStack()
	if index >= len(stack) {
		return decimal.Zero, fmt.Errorf("stack index %d out of range (%d entries)", index, len(stack))
	}
	num, ok := stack[index].GetNum().Get()
	if !ok {
		return decimal.Zero, fmt.Errorf("stack entry %d is not a number", index)
	}
	value, ok := new(big.Int).SetString(strings.TrimPrefix(num, "0x"), 16)
	if !ok {
		return decimal.Zero, fmt.Errorf("stack entry %d is not a valid amount: %q", index, num)
	}
	return decimal.NewFromBigInt(value, 0), nil
}
