package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

const (
	codeUserRejected   = 4001
	codeMethodNotFound = -32601
)

// RPCProvider はノード（またはClef等の外部署名者）が管理するアカウントを使うプロバイダー
// 署名はノード側で行われる
type RPCProvider struct {
	client *rpc.Client
}

// DialRPC はJSON-RPCエンドポイントに接続する
func DialRPC(ctx context.Context, url string) (*RPCProvider, error) {
	client, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet rpc: %w", err)
	}
	return NewRPCProvider(client), nil
}

func NewRPCProvider(client *rpc.Client) *RPCProvider {
	return &RPCProvider{client: client}
}

// RequestAccounts は eth_requestAccounts を呼ぶ
// 未実装のノードでは eth_accounts にフォールバックする
func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts")
	if err == nil {
		return accounts, nil
	}
	if errorCode(err) == codeMethodNotFound {
		return p.Accounts(ctx)
	}
	return nil, mapRPCError(err)
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, mapRPCError(err)
	}
	return accounts, nil
}

func (p *RPCProvider) ChainID(ctx context.Context) (*big.Int, error) {
	var id hexutil.Big
	if err := p.client.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return nil, mapRPCError(err)
	}
	return (*big.Int)(&id), nil
}

// sendTxArgs は eth_sendTransaction の引数
type sendTxArgs struct {
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Data  hexutil.Bytes   `json:"data,omitempty"`
	Value *hexutil.Big    `json:"value,omitempty"`
}

func (p *RPCProvider) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	args := sendTxArgs{
		From: req.From,
		To:   req.To,
		Data: req.Data,
	}
	if req.Value != nil && req.Value.Sign() > 0 {
		args.Value = (*hexutil.Big)(req.Value)
	}

	var hash common.Hash
	if err := p.client.CallContext(ctx, &hash, "eth_sendTransaction", args); err != nil {
		return common.Hash{}, mapRPCError(err)
	}
	return hash, nil
}

// Close は接続を閉じる
func (p *RPCProvider) Close() {
	p.client.Close()
}

func errorCode(err error) int {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return rpcErr.ErrorCode()
	}
	return 0
}

func mapRPCError(err error) error {
	if errorCode(err) == codeUserRejected {
		return fmt.Errorf("%w: %v", ErrUserRejected, err)
	}
	return err
}
