package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"property-market-onchain/gateway/contract"
	"property-market-onchain/gateway/wallet"
	"property-market-onchain/model"
)

// GatewayFactory は接続済みプロバイダーからコントラクトバインディングを作る
type GatewayFactory func(provider wallet.Provider) (contract.ContractGateway, error)

// Session はプロバイダー・コントラクトバインディング・接続状態を保持する
type Session struct {
	mu sync.RWMutex

	provider        wallet.Provider
	newGateway      GatewayFactory
	contractAddress string

	state   model.SessionState
	account common.Address
	chainID *big.Int
	gateway contract.ContractGateway
}

// NewSession はセッションを作成（provider が nil ならプロバイダー未導入として扱う）
func NewSession(provider wallet.Provider, contractAddress string, newGateway GatewayFactory) *Session {
	return &Session{
		provider:        provider,
		newGateway:      newGateway,
		contractAddress: contractAddress,
		state:           model.StateDisconnected,
	}
}

// Provider はウォレットプロバイダーを返す
func (s *Session) Provider() wallet.Provider {
	return s.provider
}

// Connect はアカウントへのアクセスを要求し、コントラクトバインディングを作り直す
func (s *Session) Connect(ctx context.Context) error {
	if s.provider == nil {
		s.setState(model.StateNoProvider)
		return ErrNoProvider
	}

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		if errors.Is(err, wallet.ErrUserRejected) {
			s.setState(model.StateRejected)
			return fmt.Errorf("%w: %w", ErrAccessRejected, err)
		}
		s.setState(model.StateDisconnected)
		return fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		s.setState(model.StateRejected)
		return fmt.Errorf("%w: %w", ErrAccessRejected, wallet.ErrNoAccounts)
	}

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		s.setState(model.StateDisconnected)
		return fmt.Errorf("get chain id: %w", err)
	}

	gw, err := s.newGateway(s.provider)
	if err != nil {
		s.setState(model.StateDisconnected)
		return fmt.Errorf("bind contract: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateway = gw
	s.account = accounts[0]
	s.chainID = chainID
	s.state = model.StateConnected
	return nil
}

// Binding は接続済みのコントラクトバインディングとプロバイダーを返す
func (s *Session) Binding() (contract.ContractGateway, wallet.Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.state {
	case model.StateConnected:
		return s.gateway, s.provider, nil
	case model.StateNoProvider:
		return nil, nil, ErrNoProvider
	case model.StateRejected:
		return nil, nil, ErrAccessRejected
	default:
		return nil, nil, ErrNotConnected
	}
}

// State は現在の接続状態を返す
func (s *Session) State() model.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Info は現在の接続情報を返す
func (s *Session) Info() model.SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	info := model.SessionInfo{
		State:           s.state,
		ContractAddress: s.contractAddress,
	}
	if s.state == model.StateConnected {
		info.Account = s.account.Hex()
		if s.chainID != nil {
			info.ChainID = s.chainID.String()
		}
	}
	return info
}

// setState は接続を失った状態へ遷移し、古いバインディングを破棄する
func (s *Session) setState(state model.SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.gateway = nil
	s.account = common.Address{}
	s.chainID = nil
}
