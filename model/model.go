package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ===============================================
// 物件（Property）関連のモデル
// ===============================================

// Property はコントラクトが管理する物件
// getProperty の戻り値 (id, seller, owner, price, sold) に対応する
type Property struct {
	ID     *big.Int       `json:"id"`
	Seller common.Address `json:"seller"`
	Owner  common.Address `json:"owner"` // 表示には使わない
	Price  *big.Int       `json:"price"` // Wei
	Sold   bool           `json:"sold"`
}

// PropertyCard は一覧に描画する1件分のカード
type PropertyCard struct {
	ID       string `json:"id"`
	Seller   string `json:"seller"`
	PriceWei string `json:"price_wei"`
	PriceETH string `json:"price_eth"`
}

// ===============================================
// 通知・セッション
// ===============================================

// NotificationLevel は通知の種類
type NotificationLevel string

const (
	LevelSuccess NotificationLevel = "success"
	LevelError   NotificationLevel = "error"
	LevelWarning NotificationLevel = "warning"
)

// Notification はユーザーに表示するモーダル通知
type Notification struct {
	ID        string            `json:"id"`
	Level     NotificationLevel `json:"level"`
	Message   string            `json:"message"`
	CreatedAt time.Time         `json:"created_at"`
}

// SessionState はウォレット接続の状態
type SessionState string

const (
	StateDisconnected SessionState = "disconnected"
	StateNoProvider   SessionState = "no_provider"
	StateRejected     SessionState = "rejected" // 接続が拒否された（再接続可能）
	StateConnected    SessionState = "connected"
)

// SessionInfo は現在の接続情報
type SessionInfo struct {
	State           SessionState `json:"state"`
	Account         string       `json:"account,omitempty"`
	ChainID         string       `json:"chain_id,omitempty"`
	ContractAddress string       `json:"contract_address"`
}

// ProviderChange はウォレットのアカウント・ネットワーク変更
type ProviderChange struct {
	Accounts []common.Address `json:"accounts"`
	ChainID  *big.Int         `json:"chain_id"`
}

// ===============================================
// トランザクション・イベント
// ===============================================

// TxResult は送信したトランザクションの結果
type TxResult struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
	Success     bool   `json:"success"`
}

// TxVerification はトランザクション検証結果
type TxVerification struct {
	TxHash         string `json:"tx_hash"`
	Status         string `json:"status"` // "pending", "success", "failed"
	BlockNumber    uint64 `json:"block_number,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
	Success        bool   `json:"success"`
	IsContractCall bool   `json:"is_contract_call"`
	ValueWei       string `json:"value_wei,omitempty"`
	ValueMatched   bool   `json:"value_matched"`
}

// EventType はコントラクトイベントの種類
type EventType string

const (
	EventPropertyListed EventType = "PropertyListed"
	EventPropertySold   EventType = "PropertySold"
)

// ContractEvent はコントラクトイベントを表す
type ContractEvent struct {
	Type       EventType `json:"type"`
	TxHash     string    `json:"tx_hash"`
	BlockNo    uint64    `json:"block_number"`
	PropertyID string    `json:"property_id"`
	Seller     string    `json:"seller,omitempty"`
	Buyer      string    `json:"buyer,omitempty"`
	PriceWei   string    `json:"price_wei,omitempty"`
}
