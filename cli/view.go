// Package cli はターミナルに描画する画面
package cli

import (
	"io"
	"os"
	"sync"

	"github.com/pterm/pterm"

	"property-market-onchain/model"
)

// TerminalView は通知をその場で表示し、一覧はまとめて表として描画する
type TerminalView struct {
	mu          sync.Mutex
	out         io.Writer
	cards       []model.PropertyCard
	placeholder string
}

// NewTerminalView は out に描画する画面を作成（nil なら標準出力）
func NewTerminalView(out io.Writer) *TerminalView {
	if out == nil {
		out = os.Stdout
	}
	return &TerminalView{out: out}
}

func (v *TerminalView) Notify(n model.Notification) {
	var printer pterm.PrefixPrinter
	switch n.Level {
	case model.LevelSuccess:
		printer = pterm.Success
	case model.LevelWarning:
		printer = pterm.Warning
	default:
		printer = pterm.Error
	}
	printer.WithWriter(v.out).Println(n.Message)
}

func (v *TerminalView) ClearListings() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cards = nil
	v.placeholder = ""
}

func (v *TerminalView) ShowPlaceholder(message string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.placeholder = message
}

func (v *TerminalView) AppendCard(card model.PropertyCard) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cards = append(v.cards, card)
}

// ClearPriceInput は入力欄を持たないため何もしない
func (v *TerminalView) ClearPriceInput() {}

// RenderListings は現在の一覧を表として出力する
func (v *TerminalView) RenderListings() error {
	v.mu.Lock()
	cards := append([]model.PropertyCard(nil), v.cards...)
	placeholder := v.placeholder
	v.mu.Unlock()

	if placeholder != "" {
		pterm.Info.WithWriter(v.out).Println(placeholder)
		return nil
	}
	if len(cards) == 0 {
		return nil
	}

	data := pterm.TableData{{"ID", "Seller", "Price (ETH)", "Price (wei)"}}
	for _, c := range cards {
		data = append(data, []string{c.ID, c.Seller, c.PriceETH, c.PriceWei})
	}
	return pterm.DefaultTable.WithHasHeader(true).WithData(data).WithWriter(v.out).Render()
}

// RenderSession は接続情報を出力する
func (v *TerminalView) RenderSession(info model.SessionInfo) error {
	data := pterm.TableData{
		{"State", string(info.State)},
		{"Account", info.Account},
		{"Chain ID", info.ChainID},
		{"Contract", info.ContractAddress},
	}
	return pterm.DefaultTable.WithHasHeader(false).WithData(data).WithWriter(v.out).Render()
}

// RenderTx は送信したトランザクションの結果を出力する
func (v *TerminalView) RenderTx(res *model.TxResult) {
	if res == nil {
		return
	}
	pterm.Info.WithWriter(v.out).Printfln("tx %s (block %d, gas %d)", res.TxHash, res.BlockNumber, res.GasUsed)
}
