package chain

import (
	"context"
	"fmt"

	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/shopspring/decimal"
	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
)

// token contract opcodes
const (
	opTokenTransfer = 0x0f8a7ea5
	opTokenApprove  = 0x61700004
)

// TokenClient talks to the token master contract backing the vesting
// allocations.
type TokenClient struct {
	client *Client
	master string
}

func NewTokenClient(client *Client, master string) (*TokenClient, error) {
	if _, err := ton.ParseAccountID(master); err != nil {
		return nil, fmt.Errorf("parse token master address: %w", err)
	}
	return &TokenClient{
		client: client,
		master: master,
	}, nil
}

func (t *TokenClient) BalanceOf(ctx context.Context, address string) (decimal.Decimal, error) {
	accountID, err := ton.ParseAccountID(address)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse account address: %w", err)
	}

	result, err := t.client.execGetMethodWithArgs(ctx, t.master, "get_balance", []tonapi.ExecGetMethodArg{
		{Value: accountID.ToRaw(), Type: "slice"},
	})
	if err != nil {
		return decimal.Zero, err
	}
	return parseStackAmount(result, 0)
}

func (t *TokenClient) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	ownerID, err := ton.ParseAccountID(owner)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse owner address: %w", err)
	}
	spenderID, err := ton.ParseAccountID(spender)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse spender address: %w", err)
	}

	result, err := t.client.execGetMethodWithArgs(ctx, t.master, "get_allowance", []tonapi.ExecGetMethodArg{
		{Value: ownerID.ToRaw(), Type: "slice"},
		{Value: spenderID.ToRaw(), Type: "slice"},
	})
	if err != nil {
		return decimal.Zero, err
	}
	return parseStackAmount(result, 0)
}

func (t *TokenClient) Approve(ctx context.Context, spender string, amount decimal.Decimal) (string, error) {
	cell, err := t.spendCell(opTokenApprove, spender, amount)
	if err != nil {
		return "", err
	}
	return t.client.send(ctx, t.master, defaultAttachAmount, cell)
}

func (t *TokenClient) Transfer(ctx context.Context, to string, amount decimal.Decimal) (string, error) {
	cell, err := t.spendCell(opTokenTransfer, to, amount)
	if err != nil {
		return "", err
	}
	return t.client.send(ctx, t.master, defaultAttachAmount, cell)
}

// TransferData builds the same transfer body for the multisig to carry.
func (t *TokenClient) TransferData(to string, amount decimal.Decimal) (multisig.TxData, error) {
	cell, err := t.spendCell(opTokenTransfer, to, amount)
	if err != nil {
		return multisig.TxData{}, err
	}
	body, err := cell.ToBoc()
	if err != nil {
		return multisig.TxData{}, err
	}
	return multisig.TxData{To: t.master, Body: body}, nil
}

func (t *TokenClient) spendCell(opcode uint64, counterparty string, amount decimal.Decimal) (*boc.Cell, error) {
	counterpartyID, err := ton.ParseAccountID(counterparty)
	if err != nil {
		return nil, fmt.Errorf("parse counterparty address: %w", err)
	}

	cell := boc.NewCell()
	if err := cell.WriteUint(opcode, 32); err != nil {
		return nil, err
	}
	if err := tlb.Marshal(cell, counterpartyID.ToMsgAddress()); err != nil {
		return nil, err
	}
	if err := writeAmount(cell, amount); err != nil {
		return nil, err
	}
	return cell, nil
}
