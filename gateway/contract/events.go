package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"property-market-onchain/model"
)

// defaultScanRange は fromBlock 未指定時にさかのぼるブロック数
const defaultScanRange = 1000

// SubscribeEvents はコントラクトイベントをWebSocket経由で購読
func (g *PropertyContractGateway) SubscribeEvents(ctx context.Context) (<-chan *model.ContractEvent, error) {
	// 接続テスト: 最新ブロックを取得して接続を確認
	header, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("connection test failed: %w", err)
	}

	logs := make(chan types.Log)
	sub, err := g.backend.SubscribeFilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{g.contractAddress},
	}, logs)
	if err != nil {
		return nil, fmt.Errorf("subscribe to events: %w", err)
	}
	g.logger.Info("Subscribed to contract events",
		zap.String("contract", g.contractAddress.Hex()),
		zap.Uint64("latest_block", header.Number.Uint64()))

	eventChan := make(chan *model.ContractEvent, 100)
	go func() {
		defer close(eventChan)
		defer sub.Unsubscribe()

		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				g.logger.Error("Event subscription error", zap.Error(err))
				return
			case vLog := <-logs:
				event := g.parseLog(vLog)
				if event == nil {
					continue
				}
				select {
				case eventChan <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return eventChan, nil
}

// ScanPastEvents は過去のブロックからイベントをスキャン
// fromBlock が0の場合は最新から defaultScanRange ブロック分をさかのぼる
func (g *PropertyContractGateway) ScanPastEvents(ctx context.Context, fromBlock uint64, toBlock *uint64) ([]*model.ContractEvent, error) {
	header, err := g.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get latest block: %w", err)
	}
	currentBlock := header.Number.Uint64()

	actualFromBlock := fromBlock
	if fromBlock == 0 && currentBlock > defaultScanRange {
		actualFromBlock = currentBlock - defaultScanRange
	}
	actualToBlock := currentBlock
	if toBlock != nil {
		actualToBlock = *toBlock
	}
	if actualFromBlock > actualToBlock {
		return nil, fmt.Errorf("invalid block range %d-%d", actualFromBlock, actualToBlock)
	}

	logs, err := g.backend.FilterLogs(ctx, ethereum.FilterQuery{
		Addresses: []common.Address{g.contractAddress},
		FromBlock: new(big.Int).SetUint64(actualFromBlock),
		ToBlock:   new(big.Int).SetUint64(actualToBlock),
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs: %w", err)
	}
	g.logger.Debug("Scanned past events",
		zap.Uint64("from_block", actualFromBlock),
		zap.Uint64("to_block", actualToBlock),
		zap.Int("logs", len(logs)))

	events := make([]*model.ContractEvent, 0, len(logs))
	for _, vLog := range logs {
		if vLog.Address != g.contractAddress {
			continue
		}
		if event := g.parseLog(vLog); event != nil {
			events = append(events, event)
		}
	}
	return events, nil
}

// parseLog はログをContractEventに変換
func (g *PropertyContractGateway) parseLog(vLog types.Log) *model.ContractEvent {
	if len(vLog.Topics) == 0 {
		return nil
	}

	switch vLog.Topics[0] {
	case g.contractABI.Events["PropertyListed"].ID:
		return g.parsePropertyListed(vLog)
	case g.contractABI.Events["PropertySold"].ID:
		return g.parsePropertySold(vLog)
	default:
		g.logger.Debug("Unknown event signature",
			zap.String("topic", vLog.Topics[0].Hex()),
			zap.String("tx_hash", vLog.TxHash.Hex()))
		return nil
	}
}

func (g *PropertyContractGateway) parsePropertyListed(vLog types.Log) *model.ContractEvent {
	event := &model.ContractEvent{
		Type:    model.EventPropertyListed,
		TxHash:  vLog.TxHash.Hex(),
		BlockNo: vLog.BlockNumber,
	}

	// indexed: propertyId, seller
	if len(vLog.Topics) >= 3 {
		event.PropertyID = new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String()
		event.Seller = common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()
	}

	event.PriceWei = g.unpackPrice("PropertyListed", vLog.Data)
	return event
}

func (g *PropertyContractGateway) parsePropertySold(vLog types.Log) *model.ContractEvent {
	event := &model.ContractEvent{
		Type:    model.EventPropertySold,
		TxHash:  vLog.TxHash.Hex(),
		BlockNo: vLog.BlockNumber,
	}

	// indexed: propertyId, buyer, seller
	if len(vLog.Topics) >= 4 {
		event.PropertyID = new(big.Int).SetBytes(vLog.Topics[1].Bytes()).String()
		event.Buyer = common.BytesToAddress(vLog.Topics[2].Bytes()).Hex()
		event.Seller = common.BytesToAddress(vLog.Topics[3].Bytes()).Hex()
	}

	event.PriceWei = g.unpackPrice("PropertySold", vLog.Data)
	return event
}

// unpackPrice は non-indexed の price をデコードする
func (g *PropertyContractGateway) unpackPrice(eventName string, data []byte) string {
	values := make(map[string]interface{})
	if err := g.contractABI.UnpackIntoMap(values, eventName, data); err != nil {
		g.logger.Warn("Failed to unpack event data", zap.String("event", eventName), zap.Error(err))
		return ""
	}
	if price, ok := values["price"].(*big.Int); ok {
		return price.String()
	}
	return ""
}
