package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"property-market-onchain/gateway/wallet"
	"property-market-onchain/model"
)

var (
	// ErrReverted はトランザクションがチェーン上で失敗した（revert）
	ErrReverted = errors.New("transaction failed on chain (reverted)")
	// ErrReceiptTimeout はレシートを待つ間にタイムアウトした
	ErrReceiptTimeout = errors.New("timed out waiting for transaction receipt")
)

// ContractGateway はスマートコントラクトとの連携を担当
type ContractGateway interface {
	// GetUnsoldPropertyIds は未売却の物件IDを取得
	GetUnsoldPropertyIds(ctx context.Context) ([]*big.Int, error)

	// GetProperty は物件情報を取得
	GetProperty(ctx context.Context, id *big.Int) (*model.Property, error)

	// ListProperty は from から物件を出品する（price は Wei）
	ListProperty(ctx context.Context, from common.Address, price *big.Int) (*model.TxResult, error)

	// BuyProperty は from から value を支払って物件を購入する
	BuyProperty(ctx context.Context, from common.Address, id *big.Int, value *big.Int) (*model.TxResult, error)

	// GetContractAddress はコントラクトアドレスを返す
	GetContractAddress() string

	// VerifyTransaction はトランザクションを検証（expectedWei が nil なら金額は見ない）
	VerifyTransaction(ctx context.Context, txHash string, expectedWei *big.Int) (*model.TxVerification, error)

	// SubscribeEvents はコントラクトイベントを購読
	SubscribeEvents(ctx context.Context) (<-chan *model.ContractEvent, error)

	// ScanPastEvents は過去のブロックからイベントをスキャン
	ScanPastEvents(ctx context.Context, fromBlock uint64, toBlock *uint64) ([]*model.ContractEvent, error)
}

// Backend は読み取り・レシート取得・ログ購読に使うノードAPI（ethclient.Client が満たす）
type Backend interface {
	ethereum.ContractCaller
	ethereum.LogFilterer
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Options はゲートウェイの設定
type Options struct {
	TxTimeout    time.Duration
	PollInterval time.Duration
	Logger       *zap.Logger
	Metrics      *Metrics
}

// PropertyContractGateway はPropertyMarketコントラクトとの連携実装
type PropertyContractGateway struct {
	backend         Backend
	provider        wallet.Provider
	contractAddress common.Address
	contractABI     abi.ABI
	txTimeout       time.Duration
	pollInterval    time.Duration
	logger          *zap.Logger
	metrics         *Metrics
}

// NewPropertyContractGateway は新しいコントラクトゲートウェイを作成
func NewPropertyContractGateway(backend Backend, provider wallet.Provider, contractAddr string, opts Options) (*PropertyContractGateway, error) {
	parsedABI, err := abi.JSON(strings.NewReader(PropertyMarketABI))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}
	if !common.IsHexAddress(contractAddr) {
		return nil, fmt.Errorf("invalid contract address: %q", contractAddr)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = 3 * time.Minute
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}

	contractAddress := common.HexToAddress(contractAddr)
	if contractAddress == (common.Address{}) {
		logger.Warn("Contract address appears to be zero address")
	}
	logger.Info("Contract gateway initialized", zap.String("contract", contractAddress.Hex()))

	return &PropertyContractGateway{
		backend:         backend,
		provider:        provider,
		contractAddress: contractAddress,
		contractABI:     parsedABI,
		txTimeout:       opts.TxTimeout,
		pollInterval:    opts.PollInterval,
		logger:          logger,
		metrics:         opts.Metrics,
	}, nil
}

func (g *PropertyContractGateway) GetContractAddress() string {
	return g.contractAddress.Hex()
}

// GetUnsoldPropertyIds は未売却の物件IDを取得
func (g *PropertyContractGateway) GetUnsoldPropertyIds(ctx context.Context) (ids []*big.Int, err error) {
	defer g.metrics.observe("getUnsoldPropertyIds", time.Now(), &err)

	out, err := g.call(ctx, "getUnsoldPropertyIds")
	if err != nil {
		return nil, err
	}
	ids, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("getUnsoldPropertyIds: unexpected output type %T", out[0])
	}
	return ids, nil
}

// GetProperty は物件情報を取得
func (g *PropertyContractGateway) GetProperty(ctx context.Context, id *big.Int) (p *model.Property, err error) {
	defer g.metrics.observe("getProperty", time.Now(), &err)

	data, err := g.contractABI.Pack("getProperty", id)
	if err != nil {
		return nil, err
	}
	result, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.contractAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("getProperty(%s): %w", id, err)
	}

	// 結果をデコード
	var property struct {
		Id     *big.Int
		Seller common.Address
		Owner  common.Address
		Price  *big.Int
		IsSold bool
	}
	if err := g.contractABI.UnpackIntoInterface(&property, "getProperty", result); err != nil {
		return nil, fmt.Errorf("getProperty(%s): %w", id, err)
	}

	return &model.Property{
		ID:     property.Id,
		Seller: property.Seller,
		Owner:  property.Owner,
		Price:  property.Price,
		Sold:   property.IsSold,
	}, nil
}

// ListProperty は物件を出品する
func (g *PropertyContractGateway) ListProperty(ctx context.Context, from common.Address, price *big.Int) (res *model.TxResult, err error) {
	defer g.metrics.observe("listProperty", time.Now(), &err)
	return g.transact(ctx, from, nil, "listProperty", price)
}

// BuyProperty は value を添えて物件を購入する
func (g *PropertyContractGateway) BuyProperty(ctx context.Context, from common.Address, id *big.Int, value *big.Int) (res *model.TxResult, err error) {
	defer g.metrics.observe("buyProperty", time.Now(), &err)
	return g.transact(ctx, from, value, "buyProperty", id)
}

// call は読み取り専用の呼び出しを行う
func (g *PropertyContractGateway) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := g.contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	result, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &g.contractAddress, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	out, err := g.contractABI.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return out, nil
}

// transact は状態を変更する呼び出しをプロバイダー経由で送信し、採掘を待つ
func (g *PropertyContractGateway) transact(ctx context.Context, from common.Address, value *big.Int, method string, args ...interface{}) (*model.TxResult, error) {
	data, err := g.contractABI.Pack(method, args...)
	if err != nil {
		return nil, err
	}

	hash, err := g.provider.SendTransaction(ctx, wallet.TxRequest{
		From:  from,
		To:    &g.contractAddress,
		Data:  data,
		Value: value,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	g.logger.Info("Transaction sent",
		zap.String("method", method),
		zap.String("from", from.Hex()),
		zap.String("tx_hash", hash.Hex()))

	receipt, err := g.waitMined(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}

	result := &model.TxResult{
		TxHash:  hash.Hex(),
		GasUsed: receipt.GasUsed,
		Success: receipt.Status == types.ReceiptStatusSuccessful,
	}
	if receipt.BlockNumber != nil {
		result.BlockNumber = receipt.BlockNumber.Uint64()
	}
	if !result.Success {
		return result, fmt.Errorf("%s: %w (tx: %s)", method, ErrReverted, hash.Hex())
	}
	return result, nil
}

// waitMined はレシートが取得できるまでポーリングする
func (g *PropertyContractGateway) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, g.txTimeout)
	defer cancel()

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			g.logger.Debug("Failed to get transaction receipt", zap.String("tx_hash", hash.Hex()), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrReceiptTimeout, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
