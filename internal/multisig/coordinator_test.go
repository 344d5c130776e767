package multisig

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

// walletState is the on-chain state of the simulated threshold wallet,
// shared by every approver's view of it.
type walletState struct {
	threshold int
	nonce     int64
	orders    map[string]*ProposalInfo
}

// fakeWallet is one approver's session against the shared wallet state. The
// signer field selects whose signature an Approve call records, so one wallet
// can be driven through multiple coordinator instances.
type fakeWallet struct {
	state  *walletState
	signer string
}

func newFakeWallet(threshold int) *fakeWallet {
	return &fakeWallet{
		state: &walletState{
			threshold: threshold,
			orders:    make(map[string]*ProposalInfo),
		},
		signer: "signer-a",
	}
}

func (w *fakeWallet) as(signer string) *fakeWallet {
	return &fakeWallet{state: w.state, signer: signer}
}

func (w *fakeWallet) GetThreshold(context.Context) (int, error) { return w.state.threshold, nil }
func (w *fakeWallet) GetNonce(context.Context) (int64, error)   { return w.state.nonce, nil }

func (w *fakeWallet) GetNextNonce(context.Context, string) (int64, error) {
	return w.state.nonce, nil
}

func (w *fakeWallet) CreateTransaction(_ context.Context, data TxData) (*Proposal, error) {
	return &Proposal{To: data.To, Value: data.Value, Body: data.Body, Nonce: w.state.nonce}, nil
}

func (w *fakeWallet) GetTransactionHash(_ context.Context, proposal *Proposal) (string, error) {
	digest := sha256.Sum256(append([]byte(fmt.Sprintf("%d|%s|", proposal.Nonce, proposal.To)), proposal.Body...))
	return hex.EncodeToString(digest[:]), nil
}

func (w *fakeWallet) SignTransactionHash(_ context.Context, hash string) (string, error) {
	return "sig:" + w.signer + ":" + hash, nil
}

func (w *fakeWallet) ProposeTransaction(_ context.Context, proposal *Proposal, safeHash, _ string) error {
	w.state.orders[safeHash] = &ProposalInfo{
		SafeHash:      safeHash,
		Nonce:         proposal.Nonce,
		Confirmations: []string{w.signer},
	}
	return nil
}

func (w *fakeWallet) GetTransaction(_ context.Context, safeHash string) (*ProposalInfo, error) {
	info, ok := w.state.orders[safeHash]
	if !ok {
		return nil, fmt.Errorf("unknown order %s", safeHash)
	}
	return info, nil
}

func (w *fakeWallet) ApproveTransactionHash(_ context.Context, safeHash string) (string, error) {
	info, ok := w.state.orders[safeHash]
	if !ok {
		return "", fmt.Errorf("unknown order %s", safeHash)
	}
	for _, approver := range info.Confirmations {
		if approver == w.signer {
			return "", nil
		}
	}
	info.Confirmations = append(info.Confirmations, w.signer)
	return "sig:" + w.signer + ":" + safeHash, nil
}

func (w *fakeWallet) ExecuteTransaction(_ context.Context, safeHash string) (string, error) {
	info, ok := w.state.orders[safeHash]
	if !ok {
		return "", fmt.Errorf("unknown order %s", safeHash)
	}
	if info.Executed {
		return "", fmt.Errorf("order %s already executed", safeHash)
	}
	info.Executed = true
	w.state.nonce++
	return "tx:" + safeHash, nil
}

func (w *fakeWallet) DirectSend(_ context.Context, data TxData) (string, error) {
	return "direct:" + data.To, nil
}

func testData() TxData {
	return TxData{To: "0:contract", Body: []byte{0x01, 0x02}}
}

func TestProposeCountsProposerSignature(t *testing.T) {
	wallet := newFakeWallet(2)
	coordinator := NewCoordinator(wallet)

	receipt, err := coordinator.Propose(context.Background(), testData())
	require.NoError(t, err)
	require.NotEmpty(t, receipt.SafeHash)
	require.EqualValues(t, 0, receipt.Nonce)

	confirmations, err := coordinator.Confirmations(context.Background(), receipt.SafeHash)
	require.NoError(t, err)
	require.Equal(t, []string{"signer-a"}, confirmations)

	executable, err := coordinator.Executable(context.Background(), receipt.SafeHash)
	require.NoError(t, err)
	require.False(t, executable)
}

func TestApproveReachesThreshold(t *testing.T) {
	wallet := newFakeWallet(2)
	ctx := context.Background()

	receipt, err := NewCoordinator(wallet).Propose(ctx, testData())
	require.NoError(t, err)

	// second approver signs through their own coordinator
	count, err := NewCoordinator(wallet.as("signer-b")).Approve(ctx, receipt.SafeHash)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	executable, err := NewCoordinator(wallet).Executable(ctx, receipt.SafeHash)
	require.NoError(t, err)
	require.True(t, executable)
}

func TestExecuteRefusesBelowThreshold(t *testing.T) {
	wallet := newFakeWallet(2)
	ctx := context.Background()
	coordinator := NewCoordinator(wallet)

	receipt, err := coordinator.Propose(ctx, testData())
	require.NoError(t, err)

	_, err = coordinator.Execute(ctx, receipt.SafeHash, receipt.Nonce)
	require.ErrorIs(t, err, ErrNotExecutable)
}

func TestExecuteRefusesStaleNonce(t *testing.T) {
	wallet := newFakeWallet(2)
	ctx := context.Background()
	coordinatorA := NewCoordinator(wallet)
	coordinatorB := NewCoordinator(wallet.as("signer-b"))

	// two fully-approved proposals recorded against the same wallet nonce
	first, err := coordinatorA.Propose(ctx, testData())
	require.NoError(t, err)
	second, err := coordinatorA.Propose(ctx, TxData{To: "0:other", Body: []byte{0x03}})
	require.NoError(t, err)

	_, err = coordinatorB.Approve(ctx, first.SafeHash)
	require.NoError(t, err)
	_, err = coordinatorB.Approve(ctx, second.SafeHash)
	require.NoError(t, err)

	// approver A executes first and consumes the nonce
	hash, err := coordinatorA.Execute(ctx, first.SafeHash, first.Nonce)
	require.NoError(t, err)
	require.NotEmpty(t, hash)

	// approver B's execute against the now-stale nonce must abort,
	// not execute twice
	_, err = coordinatorB.Execute(ctx, second.SafeHash, second.Nonce)
	require.ErrorIs(t, err, ErrStaleProposal)

	info, err := wallet.GetTransaction(ctx, second.SafeHash)
	require.NoError(t, err)
	require.False(t, info.Executed)
}

func TestApproveIsIdempotentPerSigner(t *testing.T) {
	wallet := newFakeWallet(3)
	ctx := context.Background()
	coordinator := NewCoordinator(wallet)

	receipt, err := coordinator.Propose(ctx, testData())
	require.NoError(t, err)

	count, err := coordinator.Approve(ctx, receipt.SafeHash)
	require.NoError(t, err)
	require.Equal(t, 1, count, "re-approving must not double-count the proposer")
}

func TestSubStateFor(t *testing.T) {
	wallet := newFakeWallet(2)
	ctx := context.Background()
	coordinatorA := NewCoordinator(wallet)

	receipt, err := coordinatorA.Propose(ctx, testData())
	require.NoError(t, err)

	state, err := coordinatorA.SubStateFor(ctx, receipt.SafeHash, "signer-a")
	require.NoError(t, err)
	require.Equal(t, SubStateWaitingApproval, state)

	state, err = coordinatorA.SubStateFor(ctx, receipt.SafeHash, "signer-b")
	require.NoError(t, err)
	require.Equal(t, SubStateApprovalRequired, state)

	_, err = NewCoordinator(wallet.as("signer-b")).Approve(ctx, receipt.SafeHash)
	require.NoError(t, err)

	state, err = coordinatorA.SubStateFor(ctx, receipt.SafeHash, "signer-a")
	require.NoError(t, err)
	require.Equal(t, SubStateExecutable, state)
}

func TestDirectSend(t *testing.T) {
	wallet := newFakeWallet(1)
	hash, err := NewCoordinator(wallet).DirectSend(context.Background(), testData())
	require.NoError(t, err)
	require.Equal(t, "direct:0:contract", hash)
}
