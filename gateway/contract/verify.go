package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"property-market-onchain/model"
)

var (
	ErrInvalidTxHash = errors.New("invalid transaction hash format")
	ErrTxNotFound    = errors.New("transaction not found")
)

// VerifyTransaction はトランザクションを検証
// expectedWei を渡すと、コントラクト宛てかつ送金額が期待額以上かを ValueMatched に反映する
func (g *PropertyContractGateway) VerifyTransaction(ctx context.Context, txHash string, expectedWei *big.Int) (v *model.TxVerification, err error) {
	defer g.metrics.observe("verifyTransaction", time.Now(), &err)

	hash := common.HexToHash(txHash)
	if hash == (common.Hash{}) {
		return nil, ErrInvalidTxHash
	}

	tx, isPending, err := g.backend.TransactionByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTxNotFound, hash.Hex())
		}
		return nil, fmt.Errorf("get transaction %s: %w", hash.Hex(), err)
	}

	verification := &model.TxVerification{
		TxHash:         hash.Hex(),
		IsContractCall: tx.To() != nil && *tx.To() == g.contractAddress,
		ValueWei:       tx.Value().String(),
	}

	if isPending {
		verification.Status = "pending"
		return verification, nil
	}

	receipt, err := g.backend.TransactionReceipt(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("get transaction receipt %s: %w", hash.Hex(), err)
	}

	verification.GasUsed = receipt.GasUsed
	if receipt.BlockNumber != nil {
		verification.BlockNumber = receipt.BlockNumber.Uint64()
	}
	verification.Success = receipt.Status == types.ReceiptStatusSuccessful
	if verification.Success {
		verification.Status = "success"
	} else {
		verification.Status = "failed"
	}

	// 送金額の検証 - 期待額以上であればOK
	if expectedWei == nil {
		verification.ValueMatched = verification.Success
	} else {
		verification.ValueMatched = verification.Success &&
			verification.IsContractCall &&
			tx.Value().Cmp(expectedWei) >= 0
		if !verification.ValueMatched {
			g.logger.Info("Payment not matched",
				zap.String("tx_hash", hash.Hex()),
				zap.String("value_wei", tx.Value().String()),
				zap.String("expected_wei", expectedWei.String()),
				zap.Bool("is_contract_call", verification.IsContractCall))
		}
	}

	return verification, nil
}
