package chain

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/polartar/vtvl-engine/internal/logger"
	"github.com/polartar/vtvl-engine/internal/multisig"
	"github.com/tonkeeper/tonapi-go"
	"github.com/tonkeeper/tongo/boc"
	"github.com/tonkeeper/tongo/tlb"
	"github.com/tonkeeper/tongo/ton"
	"go.uber.org/zap"
)

// threshold wallet contract opcodes
const (
	opNewOrder     = 0x5f6e6f01
	opApproveOrder = 0x5f617002
	opExecuteOrder = 0x5f657803
)

// MultisigWallet adapts the on-chain threshold wallet to the coordinator's
// Wallet interface. All reads go through get methods so every decision sees
// the wallet state other approvers may have changed.
type MultisigWallet struct {
	client  *Client
	address string
}

func NewMultisigWallet(client *Client, address string) (*MultisigWallet, error) {
	if _, err := ton.ParseAccountID(address); err != nil {
		return nil, fmt.Errorf("parse multisig address: %w", err)
	}
	return &MultisigWallet{
		client:  client,
		address: address,
	}, nil
}

func (m *MultisigWallet) GetThreshold(ctx context.Context) (int, error) {
	result, err := m.client.execGetMethod(ctx, m.address, "get_multisig_data")
	if err != nil {
		return 0, err
	}
	threshold, err := parseStackNum(result, 1)
	if err != nil {
		return 0, err
	}
	return int(threshold), nil
}

// GetNonce returns the wallet's next order sequence number. Executing any
// order advances it, which is what makes it usable as a staleness fence.
func (m *MultisigWallet) GetNonce(ctx context.Context) (int64, error) {
	return m.GetNextNonce(ctx, m.address)
}

func (m *MultisigWallet) GetNextNonce(ctx context.Context, address string) (int64, error) {
	result, err := m.client.execGetMethod(ctx, address, "get_multisig_data")
	if err != nil {
		return 0, err
	}
	return parseStackNum(result, 0)
}

func (m *MultisigWallet) CreateTransaction(ctx context.Context, data multisig.TxData) (*multisig.Proposal, error) {
	nonce, err := m.GetNonce(ctx)
	if err != nil {
		return nil, err
	}
	return &multisig.Proposal{
		To:    data.To,
		Value: data.Value,
		Body:  data.Body,
		Nonce: nonce,
	}, nil
}

// GetTransactionHash derives the hash approvers confirm against: a digest
// of the order's nonce, destination, value and call body.
func (m *MultisigWallet) GetTransactionHash(_ context.Context, proposal *multisig.Proposal) (string, error) {
	digest := sha256.New()

	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], uint64(proposal.Nonce))
	digest.Write(nonceBytes[:])
	digest.Write([]byte(proposal.To))
	digest.Write([]byte(proposal.Value))
	digest.Write(proposal.Body)

	return hex.EncodeToString(digest.Sum(nil)), nil
}

func (m *MultisigWallet) SignTransactionHash(_ context.Context, hash string) (string, error) {
	hashBytes, err := hex.DecodeString(hash)
	if err != nil {
		return "", fmt.Errorf("decode transaction hash: %w", err)
	}
	signature := ed25519.Sign(m.client.privateKey, hashBytes)
	return hex.EncodeToString(signature), nil
}

// ProposeTransaction publishes a new order carrying the proposer's
// signature as its first approval.
func (m *MultisigWallet) ProposeTransaction(ctx context.Context, proposal *multisig.Proposal, safeHash, signature string) error {
	destinationID, err := ton.ParseAccountID(proposal.To)
	if err != nil {
		return fmt.Errorf("parse order destination: %w", err)
	}
	value, err := parseValue(proposal.Value)
	if err != nil {
		return err
	}
	hashBytes, err := hex.DecodeString(safeHash)
	if err != nil {
		return fmt.Errorf("decode safe hash: %w", err)
	}
	signatureBytes, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	cell := boc.NewCell()
	if err := cell.WriteUint(opNewOrder, 32); err != nil {
		return err
	}
	if err := cell.WriteUint(uint64(proposal.Nonce), 64); err != nil {
		return err
	}
	if err := tlb.Marshal(cell, destinationID.ToMsgAddress()); err != nil {
		return err
	}
	if err := cell.WriteUint(uint64(value), 64); err != nil {
		return err
	}
	if err := cell.WriteBytes(hashBytes); err != nil {
		return err
	}

	signatureCell := boc.NewCell()
	if err := signatureCell.WriteBytes(signatureBytes); err != nil {
		return err
	}
	if err := cell.AddRef(signatureCell); err != nil {
		return err
	}

	bodyCells, err := boc.DeserializeBoc(proposal.Body)
	if err != nil {
		return fmt.Errorf("deserialize order body: %w", err)
	}
	if err := cell.AddRef(bodyCells[0]); err != nil {
		return err
	}

	if _, err := m.client.send(ctx, m.address, defaultAttachAmount, cell); err != nil {
		return err
	}

	logger.Debug("order proposed",
		zap.String("multisig", m.address),
		zap.Int64("order seqno", proposal.Nonce),
	)
	return nil
}

// GetTransaction reads the order's current approval state. The approvals
// mask is resolved to signer addresses index by index.
func (m *MultisigWallet) GetTransaction(ctx context.Context, safeHash string) (*multisig.ProposalInfo, error) {
	result, err := m.client.execGetMethodWithArgs(ctx, m.address, "get_order_state", []tonapi.ExecGetMethodArg{
		{Value: "0x" + safeHash, Type: "int257"},
	})
	if err != nil {
		return nil, err
	}

	nonce, err := parseStackNum(result, 0)
	if err != nil {
		return nil, err
	}
	approvalsMask, err := parseStackNum(result, 1)
	if err != nil {
		return nil, err
	}
	executed, err := parseStackNum(result, 2)
	if err != nil {
		return nil, err
	}

	signerCount, err := m.signerCount(ctx)
	if err != nil {
		return nil, err
	}

	var confirmations []string
	for i := int64(0); i < signerCount; i++ {
		if approvalsMask&(1<<i) == 0 {
			continue
		}
		signer, err := m.signerAddress(ctx, i)
		if err != nil {
			return nil, err
		}
		confirmations = append(confirmations, signer)
	}

	return &multisig.ProposalInfo{
		SafeHash:      safeHash,
		Nonce:         nonce,
		Confirmations: confirmations,
		Executed:      executed != 0,
	}, nil
}

func (m *MultisigWallet) signerCount(ctx context.Context) (int64, error) {
	result, err := m.client.execGetMethod(ctx, m.address, "get_multisig_data")
	if err != nil {
		return 0, err
	}
	return parseStackNum(result, 2)
}

func (m *MultisigWallet) signerAddress(ctx context.Context, index int64) (string, error) {
	result, err := m.client.execGetMethodWithArgs(ctx, m.address, "get_signer_address", []tonapi.ExecGetMethodArg{
		{Value: strconv.FormatInt(index, 10), Type: "tinyint"},
	})
	if err != nil {
		return "", err
	}
	accountID, err := parseStackAddress(result, 0)
	if err != nil {
		return "", err
	}
	return accountID.ToRaw(), nil
}

// ApproveTransactionHash signs the order hash and submits the approval.
func (m *MultisigWallet) ApproveTransactionHash(ctx context.Context, safeHash string) (string, error) {
	signature, err := m.SignTransactionHash(ctx, safeHash)
	if err != nil {
		return "", err
	}
	hashBytes, err := hex.DecodeString(safeHash)
	if err != nil {
		return "", fmt.Errorf("decode safe hash: %w", err)
	}
	signatureBytes, err := hex.DecodeString(signature)
	if err != nil {
		return "", err
	}

	cell := boc.NewCell()
	if err := cell.WriteUint(opApproveOrder, 32); err != nil {
		return "", err
	}
	if err := cell.WriteBytes(hashBytes); err != nil {
		return "", err
	}
	signatureCell := boc.NewCell()
	if err := signatureCell.WriteBytes(signatureBytes); err != nil {
		return "", err
	}
	if err := cell.AddRef(signatureCell); err != nil {
		return "", err
	}

	if _, err := m.client.send(ctx, m.address, defaultAttachAmount, cell); err != nil {
		return "", err
	}
	return signature, nil
}

// ExecuteTransaction submits the fully-approved order and returns the
// outgoing message hash for confirmation tracking.
func (m *MultisigWallet) ExecuteTransaction(ctx context.Context, safeHash string) (string, error) {
	hashBytes, err := hex.DecodeString(safeHash)
	if err != nil {
		return "", fmt.Errorf("decode safe hash: %w", err)
	}

	cell := boc.NewCell()
	if err := cell.WriteUint(opExecuteOrder, 32); err != nil {
		return "", err
	}
	if err := cell.WriteBytes(hashBytes); err != nil {
		return "", err
	}

	return m.client.send(ctx, m.address, defaultAttachAmount, cell)
}

// DirectSend bypasses the order flow for single-signer wallets.
func (m *MultisigWallet) DirectSend(ctx context.Context, data multisig.TxData) (string, error) {
	value, err := parseValue(data.Value)
	if err != nil {
		return "", err
	}
	bodyCells, err := boc.DeserializeBoc(data.Body)
	if err != nil {
		return "", fmt.Errorf("deserialize call body: %w", err)
	}
	return m.client.send(ctx, data.To, value, bodyCells[0])
}

func parseValue(value string) (tlb.Grams, error) {
	if value == "" || value == "0" {
		return defaultAttachAmount, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse attached value %q: %w", value, err)
	}
	return tlb.Grams(parsed), nil
}
