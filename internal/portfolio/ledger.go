// Package portfolio holds the in-memory position ledger: tracked assets,
// held quantities, cash and the append-only transaction log.
package portfolio

import (
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradesim/pkg/model"
)

// DefaultStartingCash is the opening cash balance of a new simulator session
const DefaultStartingCash = 100000.0

// Snapshot is a point-in-time copy of the whole ledger
type Snapshot struct {
	Cash         float64             `json:"cash"`
	TotalValue   float64             `json:"total_value"`
	TotalPnL     float64             `json:"total_pnl"`
	Positions    []model.Asset       `json:"positions"`
	Allocation   []model.Allocation  `json:"allocation"`
	Transactions []model.Transaction `json:"transactions"`
	Time         time.Time           `json:"time"`
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock overrides the time source used for transaction timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator overrides transaction id generation
func WithIDGenerator(gen func() string) Option {
	return func(l *Ledger) { l.newID = gen }
}

// WithLogger sets the ledger logger
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

// Ledger tracks assets, positions and cash.
// One mutex guards positions and price arrays; every read returns copies.
type Ledger struct {
	mu     sync.RWMutex
	assets map[string]*model.Asset
	order  []string
	cash   float64
	txns   []model.Transaction

	now   func() time.Time
	newID func() string
	log   *slog.Logger
}

// NewLedger creates an empty ledger with the given cash balance
func NewLedger(cash float64, opts ...Option) *Ledger {
	l := &Ledger{
		assets: make(map[string]*model.Asset),
		cash:   cash,
		now:    time.Now,
		newID:  uuid.NewString,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Track registers an asset in the catalog, replacing any previous entry
func (l *Ledger) Track(asset model.Asset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.put(asset)
}

func (l *Ledger) put(asset model.Asset) {
	if asset.QuantityHeld < 0 {
		asset.QuantityHeld = 0
	}
	c := asset.Clone()
	if _, ok := l.assets[asset.ID]; !ok {
		l.order = append(l.order, asset.ID)
	}
	l.assets[asset.ID] = &c
}

// AddPosition opens a position of max(1, shares) in asset.
// It does nothing and returns false when the asset is already held.
func (l *Ledger) AddPosition(asset model.Asset, shares int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.assets[asset.ID]; ok && cur.Held() {
		return false
	}

	// a cost basis left over from a closed position does not carry over
	if asset.QuantityHeld == 0 || asset.AvgBuyPrice <= 0 {
		asset.AvgBuyPrice = asset.CurrentPrice
	}
	asset.QuantityHeld = max(1, shares)
	l.put(asset)

	l.log.Info("position added",
		slog.String("asset", asset.ID),
		slog.String("symbol", asset.Symbol),
		slog.Int("shares", asset.QuantityHeld))
	return true
}

// OpenPosition is AddPosition for an asset already tracked under id
func (l *Ledger) OpenPosition(id string, shares int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return false, fmt.Errorf("open position %s: %w", id, ErrUnknownAsset)
	}
	if a.Held() {
		return false, nil
	}
	a.QuantityHeld = max(1, shares)
	a.AvgBuyPrice = a.CurrentPrice
	l.log.Info("position added", slog.String("asset", id), slog.Int("shares", a.QuantityHeld))
	return true, nil
}

// RemovePosition closes the position in id. The asset stays tracked.
func (l *Ledger) RemovePosition(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return
	}
	a.QuantityHeld = 0
	a.AvgBuyPrice = 0
	l.log.Info("position removed", slog.String("asset", id))
}

// UpdateShares replaces the held quantity with max(1, n)
func (l *Ledger) UpdateShares(id string, n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("update shares %s: %w", id, ErrUnknownAsset)
	}
	if a.QuantityHeld == 0 {
		a.AvgBuyPrice = a.CurrentPrice
	}
	a.QuantityHeld = max(1, n)
	return nil
}

// ExecuteTrade buys or sells qty shares of id at the current price.
// A rejected trade leaves the ledger untouched.
func (l *Ledger) ExecuteTrade(id string, kind model.TradeKind, qty int) (model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	reject := func(price float64, err error) (model.Transaction, error) {
		l.log.Warn("trade rejected",
			slog.String("asset", id),
			slog.String("kind", string(kind)),
			slog.Int("quantity", qty),
			slog.String("reason", err.Error()))
		return model.Transaction{}, &TradeError{AssetID: id, Kind: kind, Quantity: qty, Price: price, Err: err}
	}

	if kind != model.Buy && kind != model.Sell {
		return reject(0, ErrInvalidKind)
	}
	if qty <= 0 {
		return reject(0, ErrInvalidQuantity)
	}
	a, ok := l.assets[id]
	if !ok {
		return reject(0, ErrUnknownAsset)
	}

	price := a.CurrentPrice
	amount := price * float64(qty)

	switch kind {
	case model.Buy:
		if l.cash < amount {
			return reject(price, ErrInsufficientFunds)
		}
		held := float64(a.QuantityHeld)
		a.AvgBuyPrice = (a.AvgBuyPrice*held + amount) / (held + float64(qty))
		a.QuantityHeld += qty
		l.cash -= amount
	case model.Sell:
		if a.QuantityHeld < qty {
			return reject(price, ErrInsufficientShares)
		}
		a.QuantityHeld -= qty
		l.cash += amount
	}

	tx := model.Transaction{
		ID:       l.newID(),
		AssetID:  id,
		Kind:     kind,
		Price:    price,
		Quantity: qty,
		Time:     l.now(),
	}
	l.txns = append(l.txns, tx)

	l.log.Info("trade executed",
		slog.String("asset", id),
		slog.String("kind", string(kind)),
		slog.Int("quantity", qty),
		slog.Float64("price", price),
		slog.Float64("cash", l.cash))
	return tx, nil
}

// UnrealizedPnL returns (price - avg cost) * held, 0 when nothing is held
func (l *Ledger) UnrealizedPnL(id string) (float64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[id]
	if !ok {
		return 0, fmt.Errorf("unrealized pnl %s: %w", id, ErrUnknownAsset)
	}
	return unrealized(a), nil
}

func unrealized(a *model.Asset) float64 {
	if a.QuantityHeld == 0 {
		return 0
	}
	return (a.CurrentPrice - a.AvgBuyPrice) * float64(a.QuantityHeld)
}

// SetPrice overrides the current price of id
func (l *Ledger) SetPrice(id string, price float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	a, ok := l.assets[id]
	if !ok {
		return fmt.Errorf("set price %s: %w", id, ErrUnknownAsset)
	}
	a.CurrentPrice = price
	return nil
}

// Reprice replaces the market data of every tracked asset with fn's result.
// Position fields are owned by the ledger and survive the update.
func (l *Ledger) Reprice(fn func(model.Asset) model.Asset) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, id := range l.order {
		cur := l.assets[id]
		next := fn(cur.Clone())
		next.ID = cur.ID
		next.QuantityHeld = cur.QuantityHeld
		next.AvgBuyPrice = cur.AvgBuyPrice
		l.assets[id] = &next
	}
}

// Asset returns a copy of the tracked asset
func (l *Ledger) Asset(id string) (model.Asset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	a, ok := l.assets[id]
	if !ok {
		return model.Asset{}, false
	}
	return a.Clone(), true
}

// Assets returns copies of all tracked assets in registration order
func (l *Ledger) Assets() []model.Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Asset, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, l.assets[id].Clone())
	}
	return out
}

// Held returns copies of the assets with an open position
func (l *Ledger) Held() []model.Asset {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.held()
}

func (l *Ledger) held() []model.Asset {
	var out []model.Asset
	for _, id := range l.order {
		if a := l.assets[id]; a.Held() {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Cash returns the cash balance
func (l *Ledger) Cash() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cash
}

// Transactions returns a copy of the transaction log, oldest first
func (l *Ledger) Transactions() []model.Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]model.Transaction, len(l.txns))
	copy(out, l.txns)
	return out
}

// TotalValue returns the market value of all held positions
func (l *Ledger) TotalValue() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalValue()
}

func (l *Ledger) totalValue() float64 {
	total := 0.0
	for _, id := range l.order {
		total += l.assets[id].Value()
	}
	return total
}

func (l *Ledger) totalPnL() float64 {
	total := 0.0
	for _, id := range l.order {
		total += unrealized(l.assets[id])
	}
	return total
}

// TotalPnL sums the unrealized PnL of all positions
func (l *Ledger) TotalPnL() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.totalPnL()
}

// Allocation returns each held asset's share of the portfolio value
func (l *Ledger) Allocation() []model.Allocation {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allocation()
}

func (l *Ledger) allocation() []model.Allocation {
	total := l.totalValue()

	var out []model.Allocation
	for _, id := range l.order {
		a := l.assets[id]
		if !a.Held() {
			continue
		}
		pct := 0.0
		if total > 0 {
			pct = a.Value() / total * 100
		}
		out = append(out, model.Allocation{
			AssetID: a.ID,
			Name:    a.Name,
			Value:   a.Value(),
			Pct:     pct,
		})
	}
	return out
}

// Snapshot copies the full ledger state under one lock
func (l *Ledger) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	txns := make([]model.Transaction, len(l.txns))
	copy(txns, l.txns)

	return Snapshot{
		Cash:         l.cash,
		TotalValue:   l.totalValue(),
		TotalPnL:     l.totalPnL(),
		Positions:    l.held(),
		Allocation:   l.allocation(),
		Transactions: txns,
		Time:         l.now(),
	}
}

// ClampQuantity turns a parsed user quantity into a valid share count.
// NaN, infinite and values below 1 become 1.
func ClampQuantity(v float64) int {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 {
		return 1
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int(v)
}
