// Package usecase は物件マーケットの画面操作をコントラクト呼び出しに対応付ける
package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"property-market-onchain/gateway/wallet"
	"property-market-onchain/model"
	"property-market-onchain/units"
)

var (
	ErrNoProvider       = errors.New("no wallet provider available")
	ErrAccessRejected   = errors.New("wallet access rejected")
	ErrNotConnected     = errors.New("wallet not connected")
	ErrInvalidPrice     = errors.New("invalid price")
	ErrCallFailed       = errors.New("contract call failed")
	ErrPropertyNotFound = errors.New("property not found")
)

// ユーザーに表示するメッセージ
const (
	MsgInstallProvider  = "Please install a wallet provider to use this app"
	MsgAccessRejected   = "Wallet access was rejected. Connect your wallet to continue."
	MsgConnectFailed    = "Failed to connect wallet"
	MsgNotConnected     = "Please connect your wallet first"
	MsgInvalidPrice     = "Please enter a valid price"
	MsgListed           = "Property listed successfully"
	MsgListFailed       = "Failed to list property"
	MsgPurchased        = "Property purchased"
	MsgBuyFailed        = "Failed to buy property"
	MsgNoProperties     = "No properties available."
	MsgListingLoadError = "Error loading property list."
)

// View はコントローラーが描画する画面
type View interface {
	// Notify はモーダル通知を表示する
	Notify(n model.Notification)
	// ClearListings は物件一覧を空にする
	ClearListings()
	// ShowPlaceholder は一覧の代わりにメッセージを表示する
	ShowPlaceholder(message string)
	// AppendCard は物件カードを一覧の末尾に追加する
	AppendCard(card model.PropertyCard)
	// ClearPriceInput は価格入力欄を空にする
	ClearPriceInput()
}

// Controller は画面の操作（初期化・一覧更新・出品・購入）を担当
type Controller struct {
	session *Session
	view    View
	logger  *zap.Logger

	// refreshMu は一覧の再構築（クリアしてから追加）を直列化する
	refreshMu    sync.Mutex
	refreshGroup singleflight.Group
	buyGroup     singleflight.Group
}

// NewController はコントローラーを作成
func NewController(session *Session, view View, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		session: session,
		view:    view,
		logger:  logger.Named("controller"),
	}
}

// Session はコントローラーが使うセッションを返す
func (c *Controller) Session() *Session {
	return c.session
}

// Initialize はウォレットに接続し、一覧を読み込む
func (c *Controller) Initialize(ctx context.Context) error {
	if err := c.session.Connect(ctx); err != nil {
		switch {
		case errors.Is(err, ErrNoProvider):
			c.logger.Warn("No wallet provider configured")
			c.notify(model.LevelError, MsgInstallProvider)
		case errors.Is(err, ErrAccessRejected):
			c.logger.Warn("Wallet access rejected", zap.Error(err))
			c.notify(model.LevelError, MsgAccessRejected)
		default:
			c.logger.Error("Failed to connect wallet", zap.Error(err))
			c.notify(model.LevelError, MsgConnectFailed)
		}
		return err
	}

	info := c.session.Info()
	c.logger.Info("Wallet connected",
		zap.String("account", info.Account),
		zap.String("chain_id", info.ChainID),
		zap.String("contract", info.ContractAddress))

	_, err := c.refresh(ctx)
	return err
}

// Reconnect は接続をやり直す（拒否後の再試行やアカウント・ネットワーク変更時）
func (c *Controller) Reconnect(ctx context.Context) error {
	return c.Initialize(ctx)
}

// SessionInfo は現在の接続情報を返す
func (c *Controller) SessionInfo() model.SessionInfo {
	return c.session.Info()
}

// ListProperty は入力された価格（ETH）で物件を出品する
func (c *Controller) ListProperty(ctx context.Context, priceInput string) (*model.TxResult, error) {
	price, err := parsePrice(priceInput)
	if err != nil {
		c.notify(model.LevelWarning, MsgInvalidPrice)
		return nil, err
	}

	gw, provider, err := c.session.Binding()
	if err != nil {
		c.notifyNotConnected(err)
		return nil, err
	}

	account, err := wallet.ActiveAccount(ctx, provider)
	if err != nil {
		c.logger.Error("Failed to resolve active account", zap.Error(err))
		c.notify(model.LevelError, MsgListFailed)
		return nil, fmt.Errorf("%w: resolve account: %w", ErrCallFailed, err)
	}

	res, err := gw.ListProperty(ctx, account, price)
	if err != nil {
		c.logger.Error("Failed to list property",
			zap.String("account", account.Hex()),
			zap.String("price_wei", price.String()),
			zap.Error(err))
		c.notify(model.LevelError, MsgListFailed)
		return res, fmt.Errorf("%w: list property: %w", ErrCallFailed, err)
	}

	c.logger.Info("Property listed",
		zap.String("account", account.Hex()),
		zap.String("price_wei", price.String()),
		zap.String("tx_hash", res.TxHash))
	c.notify(model.LevelSuccess, MsgListed)
	c.view.ClearPriceInput()
	c.refreshAfterSend(ctx)
	return res, nil
}

// BuyProperty は priceWei をそのまま支払って物件を購入する
// 同じ物件への購入が実行中なら、その結果を共有する
func (c *Controller) BuyProperty(ctx context.Context, id *big.Int, priceWei *big.Int) (*model.TxResult, error) {
	if id == nil || id.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid property id", ErrPropertyNotFound)
	}
	if priceWei == nil || priceWei.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative or missing value", ErrInvalidPrice)
	}

	v, err, shared := c.buyGroup.Do(id.String(), func() (interface{}, error) {
		return c.buy(ctx, id, priceWei)
	})
	if shared {
		c.logger.Debug("Joined in-flight purchase", zap.String("property_id", id.String()))
	}
	res, _ := v.(*model.TxResult)
	return res, err
}

func (c *Controller) buy(ctx context.Context, id *big.Int, priceWei *big.Int) (*model.TxResult, error) {
	gw, provider, err := c.session.Binding()
	if err != nil {
		c.notifyNotConnected(err)
		return nil, err
	}

	account, err := wallet.ActiveAccount(ctx, provider)
	if err != nil {
		c.logger.Error("Failed to resolve active account", zap.Error(err))
		c.notify(model.LevelError, MsgBuyFailed)
		return nil, fmt.Errorf("%w: resolve account: %w", ErrCallFailed, err)
	}

	res, err := gw.BuyProperty(ctx, account, id, priceWei)
	if err != nil {
		c.logger.Error("Failed to buy property",
			zap.String("account", account.Hex()),
			zap.String("property_id", id.String()),
			zap.String("price_wei", priceWei.String()),
			zap.Error(err))
		c.notify(model.LevelError, MsgBuyFailed)
		return res, fmt.Errorf("%w: buy property %s: %w", ErrCallFailed, id, err)
	}

	c.logger.Info("Property purchased",
		zap.String("account", account.Hex()),
		zap.String("property_id", id.String()),
		zap.String("tx_hash", res.TxHash))
	c.notify(model.LevelSuccess, MsgPurchased)
	c.refreshAfterSend(ctx)
	return res, nil
}

// RefreshListings は未売却の物件一覧を読み込み直して描画する
// 実行中の更新があれば、それに相乗りする
func (c *Controller) RefreshListings(ctx context.Context) ([]model.PropertyCard, error) {
	v, err, _ := c.refreshGroup.Do("refresh", func() (interface{}, error) {
		return c.refresh(ctx)
	})
	cards, _ := v.([]model.PropertyCard)
	return cards, err
}

// refreshAfterSend は送信完了後の一覧更新（実行中の更新には相乗りせず、終わるのを待ってから読み直す）
func (c *Controller) refreshAfterSend(ctx context.Context) {
	if _, err := c.refresh(ctx); err != nil {
		c.logger.Warn("Failed to refresh listings after transaction", zap.Error(err))
	}
}

func (c *Controller) refresh(ctx context.Context) ([]model.PropertyCard, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	gw, _, err := c.session.Binding()
	if err != nil {
		return nil, err
	}

	c.view.ClearListings()

	ids, err := gw.GetUnsoldPropertyIds(ctx)
	if err != nil {
		return nil, c.failRefresh(err)
	}
	if len(ids) == 0 {
		c.view.ShowPlaceholder(MsgNoProperties)
		return []model.PropertyCard{}, nil
	}

	cards := make([]model.PropertyCard, 0, len(ids))
	for _, id := range ids {
		p, err := gw.GetProperty(ctx, id)
		if err != nil {
			return nil, c.failRefresh(fmt.Errorf("property %s: %w", id, err))
		}
		card := NewCard(p)
		c.view.AppendCard(card)
		cards = append(cards, card)
	}

	c.logger.Debug("Listings refreshed", zap.Int("count", len(cards)))
	return cards, nil
}

// failRefresh は途中まで描画したカードを消してからエラー表示に切り替える
func (c *Controller) failRefresh(err error) error {
	c.logger.Error("Failed to load property list", zap.Error(err))
	c.view.ClearListings()
	c.view.ShowPlaceholder(MsgListingLoadError)
	return fmt.Errorf("%w: load listings: %w", ErrCallFailed, err)
}

// GetProperty は1件の物件をカードとして返す（画面には描画しない）
func (c *Controller) GetProperty(ctx context.Context, id *big.Int) (*model.PropertyCard, error) {
	gw, _, err := c.session.Binding()
	if err != nil {
		return nil, err
	}

	p, err := gw.GetProperty(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: get property %s: %w", ErrCallFailed, id, err)
	}
	// 存在しないIDはゼロ値のタプルが返る
	if p.ID == nil || p.Seller == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrPropertyNotFound, id)
	}
	card := NewCard(p)
	return &card, nil
}

// VerifyTransaction はトランザクションを検証
func (c *Controller) VerifyTransaction(ctx context.Context, txHash string, expectedWei *big.Int) (*model.TxVerification, error) {
	gw, _, err := c.session.Binding()
	if err != nil {
		return nil, err
	}
	return gw.VerifyTransaction(ctx, txHash, expectedWei)
}

// RecentEvents は過去のブロックから物件イベントを取得
func (c *Controller) RecentEvents(ctx context.Context, fromBlock uint64) ([]*model.ContractEvent, error) {
	gw, _, err := c.session.Binding()
	if err != nil {
		return nil, err
	}
	events, err := gw.ScanPastEvents(ctx, fromBlock, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: scan events: %w", ErrCallFailed, err)
	}
	return events, nil
}

// WatchProvider はアカウント・ネットワークの変更を監視し、変更があれば再接続する
// ctx が終了するまでブロックする
func (c *Controller) WatchProvider(ctx context.Context, interval time.Duration) {
	provider := c.session.Provider()
	if provider == nil {
		return
	}

	for change := range wallet.Watch(ctx, provider, interval, c.logger) {
		var chainID string
		if change.ChainID != nil {
			chainID = change.ChainID.String()
		}
		c.logger.Info("Wallet provider changed, reinitializing",
			zap.Int("accounts", len(change.Accounts)),
			zap.String("chain_id", chainID))
		if err := c.Reconnect(ctx); err != nil {
			c.logger.Warn("Reconnect after provider change failed", zap.Error(err))
		}
	}
}

// WatchEvents はコントラクトイベントを購読し、受信するたびに一覧を更新する
// ctx が終了するか購読が切れるまでブロックする
func (c *Controller) WatchEvents(ctx context.Context) error {
	gw, _, err := c.session.Binding()
	if err != nil {
		return err
	}

	events, err := gw.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("Contract event listener started")

	for event := range events {
		c.logger.Info("Received event",
			zap.String("type", string(event.Type)),
			zap.String("property_id", event.PropertyID),
			zap.String("tx_hash", event.TxHash))
		if _, err := c.RefreshListings(ctx); err != nil {
			c.logger.Warn("Failed to refresh listings after event", zap.Error(err))
		}
	}
	return ctx.Err()
}

func (c *Controller) notifyNotConnected(err error) {
	if errors.Is(err, ErrNoProvider) {
		c.notify(model.LevelError, MsgInstallProvider)
		return
	}
	c.notify(model.LevelError, MsgNotConnected)
}

func (c *Controller) notify(level model.NotificationLevel, message string) {
	c.view.Notify(model.Notification{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// NewCard は物件を描画用のカードに変換する
func NewCard(p *model.Property) model.PropertyCard {
	return model.PropertyCard{
		ID:       p.ID.String(),
		Seller:   p.Seller.Hex(),
		PriceWei: p.Price.String(),
		PriceETH: units.FromWei(p.Price),
	}
}

// parsePrice は入力された価格（ETH）を検証して Wei に変換する
func parsePrice(input string) (*big.Int, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidPrice)
	}
	wei, err := units.ToWei(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPrice, err)
	}
	if wei.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be greater than zero", ErrInvalidPrice)
	}
	return wei, nil
}
