// Copyright 2025 Worldtree Labs
//
// IdentityManager is the facade over the on-chain batching contract and the
// prover registry. It validates batches, prepares insertion proofs and
// submits registration transactions.

package identity

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/worldtree/identity-coordinator/pkg/ethereum"
	"github.com/worldtree/identity-coordinator/pkg/logging"
	"github.com/worldtree/identity-coordinator/pkg/prover"
)

// Identity manager contract ABI. The registerIdentities argument order is
// contractual; the verifier recomputes the input hash from exactly these
// values.
const identityManagerABI = `[
	{
		"inputs": [],
		"name": "owner",
		"outputs": [{"name": "", "type": "address"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [],
		"name": "latestRoot",
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view",
		"type": "function"
	},
	{
		"inputs": [
			{"name": "insertionProof", "type": "uint256[8]"},
			{"name": "preRoot", "type": "uint256"},
			{"name": "startIndex", "type": "uint32"},
			{"name": "identityCommitments", "type": "uint256[]"},
			{"name": "postRoot", "type": "uint256"}
		],
		"name": "registerIdentities",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"name": "root", "type": "uint256"}],
		"name": "isRootMinedMultiChain",
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

var batchesSubmitted = promauto.NewCounter(prometheus.CounterOpts{
	Name: "coordinator_batches_submitted_total",
	Help: "Number of registerIdentities transactions handed to the transaction manager.",
})

// RootRecorder persists roots whose batches have been submitted, so the
// finalization task can later mark them as mined. pkg/database.RootRepository
// satisfies it.
type RootRecorder interface {
	InsertPendingRoot(ctx context.Context, root *big.Int) error
}

// Ethereum is the transaction manager surface the identity manager needs.
// pkg/ethereum.Client satisfies it.
type Ethereum interface {
	Address() common.Address
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	CallContract(ctx context.Context, contractAddr common.Address, callData []byte) ([]byte, error)
	SendTransaction(ctx context.Context, contractAddr common.Address, callData []byte, expectMined bool) (ethereum.TransactionID, error)
	MineTransaction(ctx context.Context, id ethereum.TransactionID) error
	FetchPendingTransactions(ctx context.Context) ([]ethereum.TransactionID, error)
}

// Options configures the identity manager.
type Options struct {
	// Address of the identity manager contract.
	Address common.Address

	// TreeDepth the contract is working with. This needs to agree with the
	// verifier in the deployed contract and with the provers.
	TreeDepth int

	// InitialLeafValue is the canonical empty-leaf field element.
	InitialLeafValue *big.Int
}

// IdentityManager is immutable after construction and safe to share across
// tasks.
type IdentityManager struct {
	eth              Ethereum
	provers          *prover.Map
	roots            RootRecorder
	abi              abi.ABI
	address          common.Address
	treeDepth        int
	initialLeafValue *big.Int
}

// New connects to the deployed identity manager contract.
//
// Construction refuses to proceed when the bound signer is not the contract
// owner. A missing contract at the address is logged but not fatal by itself;
// the owner call that follows will fail on its own terms.
func New(ctx context.Context, options Options, eth Ethereum, provers *prover.Map, roots RootRecorder) (*IdentityManager, error) {
	if options.TreeDepth < 1 {
		return nil, fmt.Errorf("tree depth must be at least 1, got %d", options.TreeDepth)
	}

	parsedABI, err := abi.JSON(strings.NewReader(identityManagerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse identity manager ABI: %w", err)
	}

	code, err := eth.CodeAt(ctx, options.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to check contract code: %w", err)
	}
	if len(code) == 0 {
		logging.Logger().Error().
			Str("address", options.Address.Hex()).
			Msg("no contract code is deployed at the provided address")
	}

	m := &IdentityManager{
		eth:              eth,
		provers:          provers,
		roots:            roots,
		abi:              parsedABI,
		address:          options.Address,
		treeDepth:        options.TreeDepth,
		initialLeafValue: options.InitialLeafValue,
	}

	owner, err := m.owner(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read contract owner: %w", err)
	}
	if owner != eth.Address() {
		logging.Logger().Error().
			Str("owner", owner.Hex()).
			Str("signer", eth.Address().Hex()).
			Msg("signer is not the owner of the identity manager contract")
		return nil, ErrNotContractOwner
	}

	logging.Logger().Info().
		Str("address", options.Address.Hex()).
		Str("owner", owner.Hex()).
		Msg("connected to the identity manager contract")

	return m, nil
}

// TreeDepth returns the merkle tree depth the contract verifies against.
func (m *IdentityManager) TreeDepth() int {
	return m.treeDepth
}

// InitialLeafValue returns the canonical empty-leaf value.
func (m *IdentityManager) InitialLeafValue() *big.Int {
	return m.initialLeafValue
}

// MaxBatchSize returns the largest batch size any registered prover handles.
func (m *IdentityManager) MaxBatchSize() int {
	return m.provers.MaxBatchSize()
}

// ValidateMerkleProofs checks that every identity's merkle proof has exactly
// tree-depth elements. Pure check, no I/O.
func (m *IdentityManager) ValidateMerkleProofs(identities []prover.Identity) error {
	for _, id := range identities {
		if len(id.MerkleProof) != m.treeDepth {
			return &MerkleProofShapeError{Expected: m.treeDepth, Actual: len(id.MerkleProof)}
		}
	}
	return nil
}

// GetSuitableProver returns the prover registered for the given batch size.
func (m *IdentityManager) GetSuitableProver(numIdentities int) (*prover.Prover, error) {
	return m.provers.Get(numIdentities)
}

// PrepareProof generates the insertion proof for a batch. It is stateless and
// may be called concurrently.
func PrepareProof(ctx context.Context, p *prover.Prover, startIndex uint64, preRoot, postRoot *big.Int, identities []prover.Identity) (*prover.Proof, error) {
	actualStartIndex, err := toStartIndex(startIndex)
	if err != nil {
		return nil, err
	}

	logging.Logger().Info().
		Int("identities", len(identities)).
		Int("proverBatchSize", p.BatchSize()).
		Msg("sending identities to prover")

	return p.GenerateProof(ctx, actualStartIndex, preRoot, postRoot, identities)
}

// RegisterIdentities submits a registerIdentities transaction for the batch
// and returns the transaction handle. The identities must be in insertion
// order; the calldata order mirrors the prover input.
func (m *IdentityManager) RegisterIdentities(
	ctx context.Context,
	startIndex uint64,
	preRoot, postRoot *big.Int,
	identities []prover.Identity,
	proof *prover.Proof,
) (ethereum.TransactionID, error) {
	actualStartIndex, err := toStartIndex(startIndex)
	if err != nil {
		return "", err
	}

	proofPoints := proof.Points()
	commitments := make([]*big.Int, len(identities))
	for i, id := range identities {
		commitments[i] = id.Commitment
	}

	callData, err := m.abi.Pack("registerIdentities", proofPoints, preRoot, actualStartIndex, commitments, postRoot)
	if err != nil {
		return "", &SubmissionError{cause: err}
	}

	// The post root is recorded before the transaction goes out; the
	// finalization task marks this row once the root is finalized across
	// chains. A row left behind by a failed send is never marked.
	if err := m.roots.InsertPendingRoot(ctx, postRoot); err != nil {
		return "", fmt.Errorf("failed to record pending root: %w", err)
	}

	id, err := m.eth.SendTransaction(ctx, m.address, callData, true)
	if err != nil {
		return "", &SubmissionError{cause: err}
	}

	batchesSubmitted.Inc()
	logging.Logger().Info().
		Str("txId", string(id)).
		Uint32("startIndex", actualStartIndex).
		Int("batchSize", len(identities)).
		Msg("identity registration submitted")

	return id, nil
}

// MineIdentities blocks until the registration transaction has been included
// in a block, or surfaces its permanent failure.
func (m *IdentityManager) MineIdentities(ctx context.Context, id ethereum.TransactionID) error {
	if err := m.eth.MineTransaction(ctx, id); err != nil {
		return err
	}
	logging.Logger().Info().Str("txId", string(id)).Msg("identity registration mined")
	return nil
}

// FetchPendingIdentities returns the handles of all in-flight registration
// transactions.
func (m *IdentityManager) FetchPendingIdentities(ctx context.Context) ([]ethereum.TransactionID, error) {
	return m.eth.FetchPendingTransactions(ctx)
}

// AwaitCleanSlate waits until no registration transaction remains pending.
// The result of each individual transaction is deliberately ignored; a clean
// slate only means nothing is in flight, not that everything succeeded.
func (m *IdentityManager) AwaitCleanSlate(ctx context.Context) error {
	pending, err := m.FetchPendingIdentities(ctx)
	if err != nil {
		return err
	}
	for _, id := range pending {
		_ = m.MineIdentities(ctx, id)
	}
	return nil
}

// LatestRoot reads the contract's current tree root.
func (m *IdentityManager) LatestRoot(ctx context.Context) (*big.Int, error) {
	out, err := m.call(ctx, "latestRoot")
	if err != nil {
		return nil, err
	}
	root, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected latestRoot return type %T", out[0])
	}
	return root, nil
}

// AssertLatestRoot checks that the contract's current root equals the
// expected one.
func (m *IdentityManager) AssertLatestRoot(ctx context.Context, expected *big.Int) error {
	latest, err := m.LatestRoot(ctx)
	if err != nil {
		return err
	}
	if latest.Cmp(expected) != 0 {
		return &RootMismatchError{Expected: expected, Actual: latest}
	}
	return nil
}

// IsRootMinedMultiChain reports whether the given root has been finalized on
// every chain the contract replicates to.
func (m *IdentityManager) IsRootMinedMultiChain(ctx context.Context, root *big.Int) (bool, error) {
	out, err := m.call(ctx, "isRootMinedMultiChain", root)
	if err != nil {
		return false, err
	}
	finalized, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected isRootMinedMultiChain return type %T", out[0])
	}
	return finalized, nil
}

// owner reads the contract's owner address.
func (m *IdentityManager) owner(ctx context.Context) (common.Address, error) {
	out, err := m.call(ctx, "owner")
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected owner return type %T", out[0])
	}
	return owner, nil
}

// call packs, executes and unpacks a contract view.
func (m *IdentityManager) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := m.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}
	result, err := m.eth.CallContract(ctx, m.address, callData)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	out, err := m.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return out, nil
}

func toStartIndex(startIndex uint64) (uint32, error) {
	if startIndex > math.MaxUint32 {
		return 0, ErrStartIndexOverflow
	}
	return uint32(startIndex), nil
}
