// Package Node talks to an Ethereum JSON-RPC endpoint: it submits raw signed
// transactions and watches for them to show up in the pool and in a block.
package Node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrNotMined is returned when WaitMined gives up before a receipt appears.
	ErrNotMined = errors.New("transaction not mined")
	// ErrNotPending is returned when the pending stream never announces a
	// transaction.
	ErrNotPending = errors.New("transaction not seen in pending pool")
)

// Submitter hands signed transaction bytes to the network.
type Submitter interface {
	Submit(ctx context.Context, raw []byte) (common.Hash, error)
}

// Receipt is the subset of a transaction receipt needed to confirm inclusion.
type Receipt struct {
	TxHash      common.Hash    `json:"transactionHash"`
	BlockHash   common.Hash    `json:"blockHash"`
	BlockNumber *hexutil.Big   `json:"blockNumber"`
	Status      hexutil.Uint64 `json:"status"`
	GasUsed     hexutil.Uint64 `json:"gasUsed"`
}

// Client is a JSON-RPC backed Submitter.
type Client struct {
	c      *rpc.Client
	logger log.Logger
}

// Dial connects to the node at url (http, ws or ipc).
func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial node %s: %w", url, err)
	}
	return NewClient(c), nil
}

// NewClient wraps an existing RPC client.
func NewClient(c *rpc.Client) *Client {
	return &Client{c: c, logger: log.New("module", "node")}
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.c.Close()
}

// Submit sends raw via eth_sendRawTransaction and returns the identifier the
// node assigned to it.
func (c *Client) Submit(ctx context.Context, raw []byte) (common.Hash, error) {
	var hash common.Hash
	if err := c.c.CallContext(ctx, &hash, "eth_sendRawTransaction", hexutil.Bytes(raw)); err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit transaction: %w", err)
	}
	c.logger.Info("Submitted transaction", "hash", hash, "size", len(raw))
	return hash, nil
}

// PendingWatch matches identifiers announced on the node's pending
// transaction stream. Open it before submitting so the announcement cannot be
// missed.
type PendingWatch interface {
	// Wait blocks until id is announced or ctx is done.
	Wait(ctx context.Context, id common.Hash) error
	Close()
}

type pendingSub struct {
	sub    *rpc.ClientSubscription
	ch     chan common.Hash
	logger log.Logger
}

// SubscribePending opens a newPendingTransactions subscription.
func (c *Client) SubscribePending(ctx context.Context) (PendingWatch, error) {
	ch := make(chan common.Hash, 16)
	sub, err := c.c.EthSubscribe(ctx, ch, "newPendingTransactions")
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to pending transactions: %w", err)
	}
	return &pendingSub{sub: sub, ch: ch, logger: c.logger}, nil
}

func (p *pendingSub) Wait(ctx context.Context, id common.Hash) error {
	for {
		select {
		case hash := <-p.ch:
			if hash == id {
				p.logger.Info("Transaction received", "hash", id)
				return nil
			}
			p.logger.Trace("Ignoring pending transaction", "hash", hash)
		case err := <-p.sub.Err():
			return fmt.Errorf("pending transaction subscription failed: %w", err)
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %w", ErrNotPending, id, ctx.Err())
		}
	}
}

func (p *pendingSub) Close() {
	p.sub.Unsubscribe()
}

// WaitPending blocks until the node announces id on its pending transaction
// stream, or ctx is done.
func (c *Client) WaitPending(ctx context.Context, id common.Hash) error {
	watch, err := c.SubscribePending(ctx)
	if err != nil {
		return err
	}
	defer watch.Close()
	return watch.Wait(ctx, id)
}

// TransactionReceipt returns the receipt for id, or nil if it is not mined yet.
func (c *Client) TransactionReceipt(ctx context.Context, id common.Hash) (*Receipt, error) {
	var receipt *Receipt
	if err := c.c.CallContext(ctx, &receipt, "eth_getTransactionReceipt", id); err != nil {
		return nil, fmt.Errorf("failed to fetch receipt: %w", err)
	}
	return receipt, nil
}

// WaitMined polls for the receipt of id every interval until it appears.
// It returns ErrNotMined if ctx is done first.
func (c *Client) WaitMined(ctx context.Context, id common.Hash, interval time.Duration) (*Receipt, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, id)
		if err != nil && ctx.Err() == nil {
			return nil, err
		}
		if receipt != nil {
			c.logger.Info("Mined transaction", "hash", id, "block", receipt.BlockNumber, "status", uint64(receipt.Status))
			return receipt, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrNotMined, id, ctx.Err())
		}
	}
}
