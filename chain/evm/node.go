package evm

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// NodeTransactor sends transactions through a node or wallet proxy that
// holds the keys itself, with eth_accounts and eth_sendTransaction.
type NodeTransactor struct {
	rpc *rpc.Client
}

var _ Transactor = (*NodeTransactor)(nil)

func NewNodeTransactor(c *rpc.Client) *NodeTransactor {
	return &NodeTransactor{rpc: c}
}

func (t *NodeTransactor) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := t.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, fmt.Errorf("eth_accounts: %w", err)
	}
	return accounts, nil
}

// sendTxArgs is the eth_sendTransaction parameter object.
type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to"`
	Value *hexutil.Big    `json:"value,omitempty"`
	Data  hexutil.Bytes   `json:"data"`
}

func (t *NodeTransactor) Send(ctx context.Context, tx Tx) (common.Hash, error) {
	args := sendTxArgs{From: tx.From, To: &tx.To, Data: tx.Data}
	if tx.Value != nil && tx.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(tx.Value)
	}
	var hash common.Hash
	if err := t.rpc.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, fmt.Errorf("eth_sendTransaction: %w", err)
	}
	return hash, nil
}

// DialNode connects to rpcURL and signs writes with the node's accounts.
func DialNode(ctx context.Context, rpcURL string, opts Options) (*Service, error) {
	c, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}
	opts.Backend = ethclient.NewClient(c)
	opts.Transactor = NewNodeTransactor(c)
	return New(opts)
}
