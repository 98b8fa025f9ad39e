package chain

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/phanxgames/pixelmap/spatial"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// MemoryOptions configures a Memory contract.
type MemoryOptions struct {
	// Price is the cost of minting one cell. Zero mints for free.
	Price decimal.Decimal
	// Accounts are the wallets known to the contract. SignIn picks the
	// first one.
	Accounts []Account
	// Funds is the starting balance of every account.
	Funds decimal.Decimal
	// Now stamps mints and blocks. Defaults to time.Now.
	Now func() time.Time
}

// Event describes one state change of a Memory contract. Balances holds
// the new balance of every account the change touched.
type Event struct {
	Block    Block                      `json:"block"`
	Balances map[string]decimal.Decimal `json:"balances,omitempty"`
}

// Memory is an in-process pixel contract. Every write produces a new block.
// It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	price    decimal.Decimal
	now      func() time.Time
	accounts []Account
	balances map[string]decimal.Decimal
	current  string

	owners   map[uint64]string
	minted   map[uint64]time.Time
	picks    map[uint64]int
	picked   map[string]map[uint64]struct{}
	images   map[uint64]PixelImage
	merges   map[uint64]Area   // root -> merged size
	mergedTo map[uint64]uint64 // sub cell -> root
	block    Block

	watchMu  sync.Mutex
	watchers map[int]func(Event)
	nextID   int
}

var (
	_ Service    = (*Memory)(nil)
	_ Subscriber = (*Memory)(nil)
)

func NewMemory(opts MemoryOptions) *Memory {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	m := &Memory{
		price:    opts.Price,
		now:      opts.Now,
		accounts: slices.Clone(opts.Accounts),
		balances: make(map[string]decimal.Decimal, len(opts.Accounts)),
		owners:   make(map[uint64]string),
		minted:   make(map[uint64]time.Time),
		picks:    make(map[uint64]int),
		picked:   make(map[string]map[uint64]struct{}),
		images:   make(map[uint64]PixelImage),
		merges:   make(map[uint64]Area),
		mergedTo: make(map[uint64]uint64),
		watchers: make(map[int]func(Event)),
	}
	for _, a := range m.accounts {
		m.balances[a.Address] = opts.Funds
	}
	m.block = Block{Time: m.now()}
	return m
}

// --- accounts ---

func (m *Memory) SignIn(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.accounts) == 0 {
		return fmt.Errorf("sign in: %w: no accounts", ErrNotSignedIn)
	}
	m.current = m.accounts[0].Address
	return nil
}

// UseAccount signs in as addr, which must be a known account.
func (m *Memory) UseAccount(addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[addr]; !ok {
		return fmt.Errorf("use account %q: %w", addr, ErrNotSignedIn)
	}
	m.current = addr
	return nil
}

func (m *Memory) SignOut() {
	m.mu.Lock()
	m.current = ""
	m.mu.Unlock()
}

func (m *Memory) CurrentAccount() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *Memory) Accounts(ctx context.Context) ([]Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.accounts), nil
}

// Balance returns the balance of addr. Unknown addresses hold nothing.
func (m *Memory) Balance(ctx context.Context, addr string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[addr], nil
}

// Price returns the cost of minting one cell.
func (m *Memory) Price() decimal.Decimal {
	return m.price
}

// --- reads ---

// Pixels returns every minted cell in id order.
func (m *Memory) Pixels(ctx context.Context) ([]Pixel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Pixel, 0, len(m.owners))
	for _, id := range slices.Sorted(maps.Keys(m.owners)) {
		out = append(out, Pixel{ID: id, Owner: m.owners[id], Minted: m.minted[id]})
	}
	return out, nil
}

// PickedPixels returns the pick count of every picked cell in id order.
func (m *Memory) PickedPixels(ctx context.Context) ([]PickCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PickCount, 0, len(m.picks))
	for _, id := range slices.Sorted(maps.Keys(m.picks)) {
		out = append(out, PickCount{ID: id, Count: m.picks[id]})
	}
	return out, nil
}

// AccountPickedPixels returns the cells addr has picked, in id order.
func (m *Memory) AccountPickedPixels(ctx context.Context, addr string) ([]uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Sorted(maps.Keys(m.picked[addr])), nil
}

// PixelImages returns every placed image in anchor id order.
func (m *Memory) PixelImages(ctx context.Context) ([]PixelImage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]PixelImage, 0, len(m.images))
	for _, id := range slices.Sorted(maps.Keys(m.images)) {
		out = append(out, m.images[id])
	}
	return out, nil
}

// UncoveredPixels returns every minted cell that was not merged into
// another, sized by its own merge or 1x1, in id order.
func (m *Memory) UncoveredPixels(ctx context.Context) ([]Area, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Area
	for _, id := range slices.Sorted(maps.Keys(m.owners)) {
		if _, covered := m.mergedTo[id]; covered {
			continue
		}
		a, ok := m.merges[id]
		if !ok {
			a = Area{ID: id, Width: 1, Height: 1}
		}
		out = append(out, a)
	}
	return out, nil
}

// MergedInto reports the root a cell was merged into.
func (m *Memory) MergedInto(id uint64) (root uint64, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	root, ok = m.mergedTo[id]
	return root, ok
}

// --- writes ---

func (m *Memory) MintPixels(ctx context.Context, id uint64, w, h int) error {
	return m.MintAs(ctx, m.CurrentAccount(), id, w, h)
}

func (m *Memory) PickPixels(ctx context.Context, id uint64, w, h int) error {
	return m.PickAs(ctx, m.CurrentAccount(), id, w, h)
}

func (m *Memory) MergePixels(ctx context.Context, id uint64, w, h int) error {
	return m.MergeAs(ctx, m.CurrentAccount(), id, w, h)
}

func (m *Memory) SetPixelImage(ctx context.Context, id uint64, ref string, w, h int) error {
	return m.SetImageAs(ctx, m.CurrentAccount(), id, ref, w, h)
}

// MintAs mints the w x h block anchored at id to account. The account pays
// Price for every cell. Nothing is minted if any cell is already taken.
func (m *Memory) MintAs(ctx context.Context, account string, id uint64, w, h int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == "" {
		return fmt.Errorf("mint %d: %w", id, ErrNotSignedIn)
	}
	if err := CheckArea(w, h); err != nil {
		return fmt.Errorf("mint %d (%dx%d): %w", id, w, h, err)
	}
	ids := spatial.IDsInRect(id, w, h)
	cost := m.price.Mul(decimal.NewFromInt(int64(w * h)))

	m.mu.Lock()
	balance, known := m.balances[account]
	if !known {
		m.mu.Unlock()
		return fmt.Errorf("mint %d: unknown account %q: %w", id, account, ErrNotSignedIn)
	}
	if balance.LessThan(cost) {
		m.mu.Unlock()
		return fmt.Errorf("mint %d: cost %s, balance %s: %w", id, cost, balance, ErrInsufficientFunds)
	}
	for _, sub := range ids {
		if _, taken := m.owners[sub]; taken {
			m.mu.Unlock()
			return fmt.Errorf("mint %d: cell %d: %w", id, sub, ErrAlreadyMinted)
		}
	}
	now := m.now()
	for _, sub := range ids {
		m.owners[sub] = account
		m.minted[sub] = now
	}
	m.balances[account] = balance.Sub(cost)
	ev := m.nextBlockLocked(account)
	m.mu.Unlock()

	logger.WithFields(logrus.Fields{"account": account, "id": id, "cells": len(ids)}).Debug("mint")
	m.emit(ev)
	return nil
}

// PickAs adds one pick by account to every cell of the block.
func (m *Memory) PickAs(ctx context.Context, account string, id uint64, w, h int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == "" {
		return fmt.Errorf("pick %d: %w", id, ErrNotSignedIn)
	}
	if err := CheckArea(w, h); err != nil {
		return fmt.Errorf("pick %d (%dx%d): %w", id, w, h, err)
	}
	ids := spatial.IDsInRect(id, w, h)

	m.mu.Lock()
	set := m.picked[account]
	if set == nil {
		set = make(map[uint64]struct{}, len(ids))
		m.picked[account] = set
	}
	for _, sub := range ids {
		m.picks[sub]++
		set[sub] = struct{}{}
	}
	ev := m.nextBlockLocked()
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// MergeAs merges the block anchored at id into one area. The account must
// own the anchor and every other cell of the block.
func (m *Memory) MergeAs(ctx context.Context, account string, id uint64, w, h int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == "" {
		return fmt.Errorf("merge %d: %w", id, ErrNotSignedIn)
	}
	if err := CheckArea(w, h); err != nil {
		return fmt.Errorf("merge %d (%dx%d): %w", id, w, h, err)
	}
	ids := spatial.IDsInRect(id, w, h)

	m.mu.Lock()
	for _, sub := range ids {
		owner, ok := m.owners[sub]
		if !ok {
			m.mu.Unlock()
			return fmt.Errorf("merge %d: cell %d: %w", id, sub, ErrNotMinted)
		}
		if owner != account {
			m.mu.Unlock()
			return fmt.Errorf("merge %d: cell %d: %w", id, sub, ErrNotOwner)
		}
	}
	m.merges[id] = Area{ID: id, Width: w, Height: h}
	for _, sub := range ids {
		if sub != id {
			m.mergedTo[sub] = id
		}
	}
	ev := m.nextBlockLocked()
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// SetImageAs places content ref over the block anchored at id. The account
// must own the anchor cell.
func (m *Memory) SetImageAs(ctx context.Context, account string, id uint64, ref string, w, h int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if account == "" {
		return fmt.Errorf("set image %d: %w", id, ErrNotSignedIn)
	}
	if ref == "" {
		return fmt.Errorf("set image %d: empty content ref", id)
	}
	if err := CheckArea(w, h); err != nil {
		return fmt.Errorf("set image %d (%dx%d): %w", id, w, h, err)
	}

	m.mu.Lock()
	owner, ok := m.owners[id]
	switch {
	case !ok:
		m.mu.Unlock()
		return fmt.Errorf("set image %d: %w", id, ErrNotMinted)
	case owner != account:
		m.mu.Unlock()
		return fmt.Errorf("set image %d: %w", id, ErrNotOwner)
	}
	m.images[id] = PixelImage{ID: id, ContentRef: ref, Width: w, Height: h}
	ev := m.nextBlockLocked()
	m.mu.Unlock()

	m.emit(ev)
	return nil
}

// Advance produces an empty block.
func (m *Memory) Advance() Block {
	m.mu.Lock()
	ev := m.nextBlockLocked()
	m.mu.Unlock()
	m.emit(ev)
	return ev.Block
}

// Fund adds amount to the balance of a known account.
func (m *Memory) Fund(addr string, amount decimal.Decimal) error {
	m.mu.Lock()
	balance, ok := m.balances[addr]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("fund %q: unknown account", addr)
	}
	m.balances[addr] = balance.Add(amount)
	ev := m.nextBlockLocked(addr)
	m.mu.Unlock()
	m.emit(ev)
	return nil
}

// CurrentBlock returns the latest block.
func (m *Memory) CurrentBlock() Block {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.block
}

func (m *Memory) nextBlockLocked(touched ...string) Event {
	m.block = Block{Number: m.block.Number + 1, Time: m.now()}
	ev := Event{Block: m.block}
	if len(touched) > 0 {
		ev.Balances = make(map[string]decimal.Decimal, len(touched))
		for _, addr := range touched {
			ev.Balances[addr] = m.balances[addr]
		}
	}
	return ev
}

// --- subscriptions ---

// Watch calls fn with every event until the returned function is called.
// fn runs on the goroutine that made the change and must not block.
func (m *Memory) Watch(fn func(Event)) (unsubscribe func()) {
	m.watchMu.Lock()
	id := m.nextID
	m.nextID++
	m.watchers[id] = fn
	m.watchMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.watchMu.Lock()
			delete(m.watchers, id)
			m.watchMu.Unlock()
		})
	}
}

func (m *Memory) emit(ev Event) {
	m.watchMu.Lock()
	fns := slices.Collect(maps.Values(m.watchers))
	m.watchMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func (m *Memory) SubscribeBlocks(ctx context.Context, fn func(Block)) (func(), error) {
	unsub := m.Watch(func(ev Event) { fn(ev.Block) })
	stop := context.AfterFunc(ctx, unsub)
	return func() {
		stop()
		unsub()
	}, nil
}

func (m *Memory) SubscribeBalance(ctx context.Context, addr string, fn func(decimal.Decimal)) (func(), error) {
	unsub := m.Watch(func(ev Event) {
		if b, ok := ev.Balances[addr]; ok {
			fn(b)
		}
	})
	stop := context.AfterFunc(ctx, unsub)
	return func() {
		stop()
		unsub()
	}, nil
}
