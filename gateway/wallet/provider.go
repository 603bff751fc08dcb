// Package wallet はウォレットプロバイダー（アカウント要求・トランザクション送信）を提供する
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrUserRejected はユーザーが要求を拒否した (EIP-1193 code 4001)
	ErrUserRejected = errors.New("user rejected the request")
	// ErrUnknownAccount はプロバイダーが署名できないアカウント
	ErrUnknownAccount = errors.New("account not managed by this provider")
	// ErrNoAccounts はアカウントが1つも公開されていない
	ErrNoAccounts = errors.New("provider exposed no accounts")
)

// TxRequest は状態を変更するコントラクト呼び出しの内容
type TxRequest struct {
	From  common.Address
	To    *common.Address
	Data  []byte
	Value *big.Int // nil なら 0
}

// Provider はウォレットプロバイダーのインターフェース
type Provider interface {
	// RequestAccounts はアカウントへのアクセスを要求する（ユーザーの承認待ちになりうる）
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Accounts は現在公開されているアカウントを返す
	Accounts(ctx context.Context) ([]common.Address, error)

	// ChainID は接続中のネットワークのチェーンIDを返す
	ChainID(ctx context.Context) (*big.Int, error)

	// SendTransaction はトランザクションを署名・送信し、ハッシュを返す
	SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error)
}

// ActiveAccount はプロバイダーの先頭アカウントを返す
func ActiveAccount(ctx context.Context, p Provider) (common.Address, error) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return common.Address{}, err
	}
	if len(accounts) == 0 {
		return common.Address{}, ErrNoAccounts
	}
	return accounts[0], nil
}
