// Package chain implements the engine's on-chain collaborators (threshold
// wallet, vesting contract, token contract) on top of tonapi and a tongo
// signer wallet.
package chain

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/polartar/vtvl-engine/internal/config"
	"github.com/polartar/vtvl-engine/internal/lifecycle"
	"github.com/polartar/vtvl-engine/internal/logger"
	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/liteapi"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"github.com/tonkeeper/tongo/wallet"
	"go.uber.org/zap"
)

const sendConfirmationWait = 60 * time.Second

// defaultAttachAmount covers gas for internal messages.
const defaultAttachAmount tlb.Grams = 50_000_000

var walletVersions = map[string]int{
	"V3R1": 5,
	"V3R2": 6,
	"V4R1": 8,
	"V4R2": 9,
	"V5R1": 11,
}

type apiFunc[T any] func() (T, error)

// withRateLimitRetry retries an API call for as long as it keeps hitting the
// rate limit.
func withRateLimitRetry[T any](fn apiFunc[T]) (T, error) {
	for {
		result, err := fn()
		if err != nil {
			var e *tonapi.ErrorStatusCode
			if errors.As(errors.Unwrap(err), &e) && e.StatusCode == 429 {
				time.Sleep(500 * time.Millisecond)
				continue
			}
		}

		return result, err
	}
}

// Client bundles the read path (tonapi) and the write path (tongo signer
// wallet) shared by the collaborator implementations.
type Client struct {
	api        *tonapi.Client
	wallet     *wallet.Wallet
	privateKey ed25519.PrivateKey
}

func NewClient(cfg *config.Config) (*Client, error) {

	logger.Debug("chain client initialization: tonapi client...")
	api, err := tonapi.NewClient(tonapi.TonApiURL, tonapi.WithToken(cfg.TonAPIToken))
	if err != nil {
		return nil, err
	}

	logger.Debug("chain client initialization: signer wallet...")
	clientLite, err := liteapi.NewClientWithDefaultMainnet()
	if err != nil {
		return nil, err
	}

	pk, err := wallet.SeedToPrivateKey(cfg.WalletMnemonic)
	if err != nil {
		return nil, err
	}

	version, ok := walletVersions[cfg.WalletVersion]
	if !ok {
		return nil, fmt.Errorf("unsupported wallet version %q", cfg.WalletVersion)
	}
	signerWallet, err := wallet.New(pk, wallet.Version(version), clientLite)
	if err != nil {
		return nil, err
	}

	logger.Debug("chain client initialization: done", zap.String("wallet version", cfg.WalletVersion))
	return &Client{
		api:        api,
		wallet:     &signerWallet,
		privateKey: pk,
	}, nil
}

// SignerAddress is the raw address of the operator's signer wallet. This is
// the identity approvals and balance checks run under; the multisig account
// is never a member of its own signer set.
func (c *Client) SignerAddress() string {
	return c.wallet.GetAddress().ToRaw()
}

func (c *Client) execGetMethod(ctx context.Context, account, method string) (*tonapi.MethodExecutionResult, error) {
	result, err := withRateLimitRetry(
		func() (*tonapi.MethodExecutionResult, error) {
			return c.api.ExecGetMethodForBlockchainAccount(ctx, tonapi.ExecGetMethodForBlockchainAccountParams{
				AccountID:  account,
				MethodName: method,
			})
		})
	if err != nil {
		return nil, err
	}
	if !result.GetSuccess() {
		return nil, fmt.Errorf("get method %s on %s did not succeed", method, account)
	}
	return result, nil
}

// execGetMethodWithArgs is the typed-argument variant used when a get
// method takes addresses or indexes.
func (c *Client) execGetMethodWithArgs(ctx context.Context, account, method string, args []tonapi.ExecGetMethodArg) (*tonapi.MethodExecutionResult, error) {
	result, err := withRateLimitRetry(
		func() (*tonapi.MethodExecutionResult, error) {
			return c.api.ExecGetMethodWithBodyForBlockchainAccount(ctx,
				tonapi.OptExecGetMethodWithBodyForBlockchainAccountReq{
					Value: tonapi.ExecGetMethodWithBodyForBlockchainAccountReq{
						Args: args,
					},
					Set: true,
				},
				tonapi.ExecGetMethodWithBodyForBlockchainAccountParams{
					AccountID:  account,
					MethodName: method,
				},
			)
		})
	if err != nil {
		return nil, err
	}
	if !result.GetSuccess() {
		return nil, fmt.Errorf("get method %s on %s did not succeed", method, account)
	}
	return result, nil
}

func parseStackNum(result *tonapi.MethodExecutionResult, index int) (int64, error) {
	stack := result.GetStack()
	if index >= len(stack) {
		return 0, fmt.Errorf("stack index %d out of range (%d entries)", index, len(stack))
	}
	num, ok := stack[index].GetNum().Get()
	if !ok {
		return 0, fmt.Errorf("stack entry %d is not a number", index)
	}
	return strconv.ParseInt(strings.TrimPrefix(num, "0x"), 16, 64)
}

func parseStackAddress(result *tonapi.MethodExecutionResult, index int) (ton.AccountID, error) {
	stack := result.GetStack()
	if index >= len(stack) {
		return ton.AccountID{}, fmt.Errorf("stack index %d out of range (%d entries)", index, len(stack))
	}
	cellHex, ok := stack[index].GetCell().Get()
	if !ok {
		return ton.AccountID{}, fmt.Errorf("stack entry %d is not a cell", index)
	}
	cells, err := boc.DeserializeBocHex(cellHex)
	if err != nil {
		return ton.AccountID{}, err
	}

	var address tlb.MsgAddress
	if err := tlb.Unmarshal(cells[0], &address); err != nil {
		return ton.AccountID{}, err
	}
	return accountIDFromTlb(address)
}

func accountIDFromTlb(address tlb.MsgAddress) (ton.AccountID, error) {
	accountID, err := tongo.AccountIDFromTlb(address)
	if err != nil {
		return ton.AccountID{}, err
	}
	if accountID == nil {
		return ton.AccountID{}, errors.New("address is not addressable")
	}
	return *accountID, nil
}

// send signs and submits one internal message through the signer wallet and
// returns the outgoing message hash used for confirmation tracking.
func (c *Client) send(ctx context.Context, destination string, amount tlb.Grams, body *boc.Cell) (string, error) {
	destinationID, err := ton.ParseAccountID(destination)
	if err != nil {
		return "", fmt.Errorf("parse destination address: %w", err)
	}

	message := wallet.Message{
		Amount:  amount,
		Address: destinationID,
		Bounce:  true,
		Mode:    wallet.DefaultMessageMode,
		Body:    body,
	}

	hash, err := c.wallet.SendV2(ctx, sendConfirmationWait, message)
	if err != nil {
		return "", err
	}
	return hash.Hex(), nil
}

// TransactionOutcome resolves a sent message hash against the chain.
// A missing trace means the message is still in flight; only an observed
// failed transaction maps to reverted.
func (c *Client) TransactionOutcome(ctx context.Context, hash string) (lifecycle.TxOutcome, error) {
	trace, err := withRateLimitRetry(
		func() (*tonapi.Trace, error) {
			return c.api.GetTrace(ctx, tonapi.GetTraceParams{TraceID: hash})
		})
	if err != nil {
		var e *tonapi.ErrorStatusCode
		if errors.As(errors.Unwrap(err), &e) && e.StatusCode == 404 {
			return lifecycle.TxOutcomePending, nil
		}
		return lifecycle.TxOutcomePending, err
	}

	if trace.Transaction.Success {
		return lifecycle.TxOutcomeConfirmed, nil
	}
	return lifecycle.TxOutcomeReverted, nil
}
