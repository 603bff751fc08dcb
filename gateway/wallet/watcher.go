package wallet

import (
	"context"
	"math/big"
	"time"

	"go.uber.org/zap"

	"property-market-onchain/model"
)

// Watch はプロバイダーのアカウントとチェーンIDを定期的に確認し、変化があれば通知する
// 最初の観測値は基準として扱い、通知しない
func Watch(ctx context.Context, p Provider, interval time.Duration, logger *zap.Logger) <-chan model.ProviderChange {
	changes := make(chan model.ProviderChange, 1)

	go func() {
		defer close(changes)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *model.ProviderChange
		for {
			current, err := observe(ctx, p)
			if err != nil {
				logger.Warn("Failed to poll wallet provider", zap.Error(err))
			} else if last != nil && changed(last, current) {
				logger.Info("Wallet provider changed",
					zap.Int("accounts", len(current.Accounts)),
					zap.Stringer("chain_id", current.ChainID))
				select {
				case changes <- *current:
				case <-ctx.Done():
					return
				}
			}
			if err == nil {
				last = current
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return changes
}

func observe(ctx context.Context, p Provider) (*model.ProviderChange, error) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	return &model.ProviderChange{Accounts: accounts, ChainID: chainID}, nil
}

func changed(a, b *model.ProviderChange) bool {
	if !sameChain(a.ChainID, b.ChainID) || len(a.Accounts) != len(b.Accounts) {
		return true
	}
	for i := range a.Accounts {
		if a.Accounts[i] != b.Accounts[i] {
			return true
		}
	}
	return false
}

func sameChain(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}
