// Copyright 2025 Worldtree Labs
//
// Transaction manager for the identity coordinator. Owns the signing key,
// nonce and gas handling, and the set of in-flight transactions.

package ethereum

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/google/uuid"

	"github.com/worldtree/identity-coordinator/pkg/logging"
)

// TransactionID is an opaque handle for a submitted transaction. It is
// allocated by the client and stable across restarts of the remote node.
type TransactionID string

// Transactions below the floor tend to sit in the pool indefinitely on the
// networks we target.
var minGasPrice = big.NewInt(5 * 1e9)

// Client represents the connection to an Ethereum node together with the
// coordinator's signing identity.
type Client struct {
	client     *ethclient.Client
	chainID    *big.Int
	privateKey *ecdsa.PrivateKey
	address    common.Address
	url        string

	mu      sync.Mutex
	pending map[TransactionID]*types.Transaction
}

// NewClient connects to an Ethereum node and binds the signing key.
func NewClient(url string, chainID int64, privateKeyHex string) (*Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Ethereum: %w", err)
	}

	privateKey, err := crypto.HexToECDSA(trimHexPrefix(privateKeyHex))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to cast public key to ECDSA")
	}

	return &Client{
		client:     client,
		chainID:    big.NewInt(chainID),
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(*publicKey),
		url:        url,
		pending:    make(map[TransactionID]*types.Transaction),
	}, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Address returns the signer address bound to this client.
func (c *Client) Address() common.Address {
	return c.address
}

// ChainID returns the chain ID the client signs for.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// CodeAt returns the deployed code at the given address.
func (c *Client) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	code, err := c.client.CodeAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get code at %s: %w", address.Hex(), err)
	}
	return code, nil
}

// CallContract makes a read-only contract call and returns the raw return
// data. Callers pack and unpack against their own ABI.
func (c *Client) CallContract(ctx context.Context, contractAddr common.Address, callData []byte) ([]byte, error) {
	result, err := c.client.CallContract(ctx, ethereum.CallMsg{
		From: c.address,
		To:   &contractAddr,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("contract call failed: %w", err)
	}
	return result, nil
}

// SendTransaction signs and submits a contract transaction and returns its
// handle. When expectMined is set, the transaction stays in the pending set
// until MineTransaction observes its receipt.
func (c *Client) SendTransaction(ctx context.Context, contractAddr common.Address, callData []byte, expectMined bool) (TransactionID, error) {
	nonce, err := c.client.PendingNonceAt(ctx, c.address)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}
	if gasPrice.Cmp(minGasPrice) < 0 {
		gasPrice = minGasPrice
	}

	gasLimit, err := c.client.EstimateGas(ctx, ethereum.CallMsg{
		From: c.address,
		To:   &contractAddr,
		Data: callData,
	})
	if err != nil {
		return "", fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx := types.NewTransaction(nonce, contractAddr, big.NewInt(0), gasLimit, gasPrice, callData)
	signedTx, err := types.SignTx(tx, types.NewEIP155Signer(c.chainID), c.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.client.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	id := TransactionID(uuid.New().String())
	if expectMined {
		c.mu.Lock()
		c.pending[id] = signedTx
		c.mu.Unlock()
	}

	logging.Logger().Info().
		Str("txId", string(id)).
		Str("txHash", signedTx.Hash().Hex()).
		Uint64("nonce", nonce).
		Msg("transaction submitted")

	return id, nil
}

// MineTransaction blocks until the transaction behind the handle has been
// included in a block, or fails permanently. The handle leaves the pending
// set either way.
func (c *Client) MineTransaction(ctx context.Context, id TransactionID) error {
	c.mu.Lock()
	signedTx, ok := c.pending[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown transaction: %s", id)
	}

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	receipt, err := bind.WaitMined(ctx, c.client, signedTx)
	if err != nil {
		return fmt.Errorf("failed to wait for transaction: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("transaction %s reverted in block %d", signedTx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}

	logging.Logger().Info().
		Str("txId", string(id)).
		Str("txHash", signedTx.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Msg("transaction mined")

	return nil
}

// FetchPendingTransactions returns the handles of all transactions submitted
// with the expect-mined flag that have not been observed as mined or failed.
func (c *Client) FetchPendingTransactions(ctx context.Context) ([]TransactionID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]TransactionID, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids, nil
}

// Health checks if the Ethereum client is healthy.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("ethereum health check failed: %w", err)
	}
	return nil
}

// Close tears down the underlying RPC connection.
func (c *Client) Close() {
	c.client.Close()
}
