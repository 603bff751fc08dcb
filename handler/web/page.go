package handler

import (
	"sync"

	"property-market-onchain/model"
)

// maxNotifications は画面に保持する未表示通知の上限
const maxNotifications = 20

// Broadcaster は画面の変更を接続中のブラウザへ送る
type Broadcaster interface {
	Broadcast(msg Message)
}

// Listings は一覧部分のスナップショット
type Listings struct {
	Cards       []model.PropertyCard `json:"cards"`
	Placeholder string               `json:"placeholder,omitempty"`
}

// Page はブラウザに描画する画面の状態（価格入力欄・物件カード・通知）
type Page struct {
	mu            sync.RWMutex
	priceInput    string
	cards         []model.PropertyCard
	placeholder   string
	notifications []model.Notification

	broadcaster Broadcaster
}

// NewPage は画面状態を作成（broadcaster は nil 可）
func NewPage(broadcaster Broadcaster) *Page {
	return &Page{broadcaster: broadcaster}
}

func (p *Page) Notify(n model.Notification) {
	p.mu.Lock()
	p.notifications = append(p.notifications, n)
	if len(p.notifications) > maxNotifications {
		p.notifications = p.notifications[len(p.notifications)-maxNotifications:]
	}
	p.mu.Unlock()

	p.broadcast(Message{Type: "notification", Payload: n})
}

func (p *Page) ClearListings() {
	p.mu.Lock()
	p.cards = nil
	p.placeholder = ""
	p.mu.Unlock()
}

func (p *Page) ShowPlaceholder(message string) {
	p.mu.Lock()
	p.placeholder = message
	p.mu.Unlock()

	p.publishListings()
}

func (p *Page) AppendCard(card model.PropertyCard) {
	p.mu.Lock()
	p.cards = append(p.cards, card)
	p.mu.Unlock()

	p.publishListings()
}

func (p *Page) ClearPriceInput() {
	p.mu.Lock()
	p.priceInput = ""
	p.mu.Unlock()
}

// SetPriceInput はフォームから送られた価格を入力欄に残す
func (p *Page) SetPriceInput(price string) {
	p.mu.Lock()
	p.priceInput = price
	p.mu.Unlock()
}

// PriceInput は入力欄の値を返す
func (p *Page) PriceInput() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.priceInput
}

// Listings は一覧のコピーを返す
func (p *Page) Listings() Listings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Listings{
		Cards:       append([]model.PropertyCard(nil), p.cards...),
		Placeholder: p.placeholder,
	}
}

// Card は描画済みのカードをIDで探す
func (p *Page) Card(id string) (model.PropertyCard, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, c := range p.cards {
		if c.ID == id {
			return c, true
		}
	}
	return model.PropertyCard{}, false
}

// TakeNotifications は未表示の通知を返して空にする
func (p *Page) TakeNotifications() []model.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := p.notifications
	p.notifications = nil
	return n
}

func (p *Page) publishListings() {
	p.broadcast(Message{Type: "listings", Payload: p.Listings()})
}

func (p *Page) broadcast(msg Message) {
	if p.broadcaster != nil {
		p.broadcaster.Broadcast(msg)
	}
}
