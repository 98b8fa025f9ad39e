// Package evm implements chain.Service against the pixel contract on EVM
// chains such as Polygon and BSC.
//
// Reads are eth_call requests decoded with the contract ABI. Writes are
// packed into calldata and handed to a Transactor, which signs and sends
// them with whatever wallet the application uses.
package evm

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Backend is the node connection. *ethclient.Client implements it.
type Backend interface {
	ethereum.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// Tx is an unsigned contract call.
type Tx struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Data  []byte
}

// Transactor signs and submits transactions for a wallet.
type Transactor interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	Send(ctx context.Context, tx Tx) (common.Hash, error)
}

type Options struct {
	Platform   chain.Platform
	Contract   common.Address
	Backend    Backend
	Transactor Transactor
	Logger     logrus.FieldLogger
}

// Service talks to one deployed pixel contract.
type Service struct {
	platform chain.Platform
	contract common.Address
	abi      abi.ABI
	backend  Backend
	tx       Transactor
	log      logrus.FieldLogger

	mu      sync.RWMutex
	account common.Address
	signed  bool
}

var (
	_ chain.Service    = (*Service)(nil)
	_ chain.Subscriber = (*Service)(nil)
)

// New creates a service over an existing backend.
func New(opts Options) (*Service, error) {
	if opts.Backend == nil {
		return nil, errors.New("evm: nil backend")
	}
	parsed, err := abi.JSON(strings.NewReader(PixelLandABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse ABI: %w", err)
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger().WithField("component", "evm")
	}
	return &Service{
		platform: opts.Platform,
		contract: opts.Contract,
		abi:      parsed,
		backend:  opts.Backend,
		tx:       opts.Transactor,
		log:      opts.Logger.WithField("platform", opts.Platform),
	}, nil
}

// Dial connects to rpcURL and creates a service over it.
func Dial(ctx context.Context, rpcURL string, opts Options) (*Service, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", rpcURL, err)
	}
	opts.Backend = client
	return New(opts)
}

// --- accounts ---

func (s *Service) SignIn(ctx context.Context) error {
	if s.tx == nil {
		return fmt.Errorf("sign in: %w: no wallet", chain.ErrNotSignedIn)
	}
	accounts, err := s.tx.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("sign in: %w: wallet has no accounts", chain.ErrNotSignedIn)
	}
	s.mu.Lock()
	s.account, s.signed = accounts[0], true
	s.mu.Unlock()
	s.log.WithField("account", accounts[0].Hex()).Info("signed in")
	return nil
}

func (s *Service) SignOut() {
	s.mu.Lock()
	s.account, s.signed = common.Address{}, false
	s.mu.Unlock()
}

func (s *Service) CurrentAccount() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.signed {
		return ""
	}
	return s.account.Hex()
}

func (s *Service) Accounts(ctx context.Context) ([]chain.Account, error) {
	if s.tx == nil {
		return nil, nil
	}
	addrs, err := s.tx.Accounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("accounts: %w", err)
	}
	out := make([]chain.Account, len(addrs))
	for i, a := range addrs {
		out[i] = chain.Account{Address: a.Hex()}
	}
	return out, nil
}

func (s *Service) Balance(ctx context.Context, addr string) (decimal.Decimal, error) {
	a, err := parseAddress(addr)
	if err != nil {
		return decimal.Zero, err
	}
	wei, err := s.backend.BalanceAt(ctx, a, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("balance of %s: %w", addr, err)
	}
	return FromWei(wei), nil
}

func parseAddress(addr string) (common.Address, error) {
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("evm: invalid address %q", addr)
	}
	return common.HexToAddress(addr), nil
}

// --- reads ---

// call runs a view function and decodes its outputs into out.
func (s *Service) call(ctx context.Context, out any, method string, args ...any) error {
	data, err := s.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := s.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &s.contract,
		Data: data,
	}, nil)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}
	if err := s.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	return nil
}

func (s *Service) Pixels(ctx context.Context) ([]chain.Pixel, error) {
	var res pixelsResult
	if err := s.call(ctx, &res, "getPixels"); err != nil {
		return nil, err
	}
	if len(res.Owners) != len(res.Ids) || len(res.Minted) != len(res.Ids) {
		return nil, fmt.Errorf("getPixels: column lengths %d/%d/%d differ", len(res.Ids), len(res.Owners), len(res.Minted))
	}
	out := make([]chain.Pixel, len(res.Ids))
	for i, id := range res.Ids {
		out[i] = chain.Pixel{
			ID:     id.Uint64(),
			Owner:  res.Owners[i].Hex(),
			Minted: time.Unix(int64(res.Minted[i]), 0).UTC(),
		}
	}
	return out, nil
}

func (s *Service) PickedPixels(ctx context.Context) ([]chain.PickCount, error) {
	var res pickCountsResult
	if err := s.call(ctx, &res, "getPickCounts"); err != nil {
		return nil, err
	}
	if len(res.Counts) != len(res.Ids) {
		return nil, fmt.Errorf("getPickCounts: column lengths %d/%d differ", len(res.Ids), len(res.Counts))
	}
	out := make([]chain.PickCount, len(res.Ids))
	for i, id := range res.Ids {
		out[i] = chain.PickCount{ID: id.Uint64(), Count: int(res.Counts[i])}
	}
	return out, nil
}

func (s *Service) AccountPickedPixels(ctx context.Context, addr string) ([]uint64, error) {
	a, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}
	var ids []*big.Int
	if err := s.call(ctx, &ids, "getAccountPicks", a); err != nil {
		return nil, err
	}
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = id.Uint64()
	}
	return out, nil
}

func (s *Service) PixelImages(ctx context.Context) ([]chain.PixelImage, error) {
	var res imagesResult
	if err := s.call(ctx, &res, "getImages"); err != nil {
		return nil, err
	}
	n := len(res.Ids)
	if len(res.Refs) != n || len(res.Widths) != n || len(res.Heights) != n {
		return nil, fmt.Errorf("getImages: column lengths differ")
	}
	out := make([]chain.PixelImage, n)
	for i, id := range res.Ids {
		out[i] = chain.PixelImage{
			ID:         id.Uint64(),
			ContentRef: res.Refs[i],
			Width:      int(res.Widths[i]),
			Height:     int(res.Heights[i]),
		}
	}
	return out, nil
}

func (s *Service) UncoveredPixels(ctx context.Context) ([]chain.Area, error) {
	var res uncoveredResult
	if err := s.call(ctx, &res, "getUncovered"); err != nil {
		return nil, err
	}
	n := len(res.Ids)
	if len(res.Widths) != n || len(res.Heights) != n {
		return nil, fmt.Errorf("getUncovered: column lengths differ")
	}
	out := make([]chain.Area, n)
	for i, id := range res.Ids {
		out[i] = chain.Area{ID: id.Uint64(), Width: int(res.Widths[i]), Height: int(res.Heights[i])}
	}
	return out, nil
}

// MintPrice returns the per-cell mint price in wei.
func (s *Service) MintPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	if err := s.call(ctx, &price, "mintPrice"); err != nil {
		return nil, err
	}
	return price, nil
}

// --- writes ---

// send packs a contract call and submits it from the signed-in account.
func (s *Service) send(ctx context.Context, value *big.Int, method string, args ...any) error {
	s.mu.RLock()
	from, signed := s.account, s.signed
	s.mu.RUnlock()
	if !signed || s.tx == nil {
		return fmt.Errorf("%s: %w", method, chain.ErrNotSignedIn)
	}
	data, err := s.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	hash, err := s.tx.Send(ctx, Tx{From: from, To: s.contract, Value: value, Data: data})
	if err != nil {
		return fmt.Errorf("send %s: %w", method, err)
	}
	s.log.WithFields(logrus.Fields{"method": method, "tx": hash.Hex()}).Info("transaction sent")
	return nil
}

func (s *Service) MintPixels(ctx context.Context, id uint64, w, h int) error {
	if err := chain.CheckArea(w, h); err != nil {
		return fmt.Errorf("mint %d: %w", id, err)
	}
	if s.CurrentAccount() == "" {
		return fmt.Errorf("mint %d: %w", id, chain.ErrNotSignedIn)
	}
	price, err := s.MintPrice(ctx)
	if err != nil {
		return err
	}
	cost := new(big.Int).Mul(price, big.NewInt(int64(w*h)))
	return s.send(ctx, cost, "batchMint", new(big.Int).SetUint64(id), uint8(w), uint8(h))
}

func (s *Service) PickPixels(ctx context.Context, id uint64, w, h int) error {
	if err := chain.CheckArea(w, h); err != nil {
		return fmt.Errorf("pick %d: %w", id, err)
	}
	return s.send(ctx, nil, "pick", new(big.Int).SetUint64(id), uint8(w), uint8(h))
}

func (s *Service) MergePixels(ctx context.Context, id uint64, w, h int) error {
	if err := chain.CheckArea(w, h); err != nil {
		return fmt.Errorf("merge %d: %w", id, err)
	}
	return s.send(ctx, nil, "merge", new(big.Int).SetUint64(id), uint8(w), uint8(h))
}

func (s *Service) SetPixelImage(ctx context.Context, id uint64, ref string, w, h int) error {
	if err := chain.CheckArea(w, h); err != nil {
		return fmt.Errorf("set image %d: %w", id, err)
	}
	if ref == "" {
		return fmt.Errorf("set image %d: empty content ref", id)
	}
	return s.send(ctx, nil, "setImage", new(big.Int).SetUint64(id), ref, uint8(w), uint8(h))
}

// --- subscriptions ---

// SubscribeBlocks forwards new chain heads to fn on a background goroutine.
func (s *Service) SubscribeBlocks(ctx context.Context, fn func(chain.Block)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	heads := make(chan *types.Header, 16)
	sub, err := s.backend.SubscribeNewHead(ctx, heads)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe heads: %w", err)
	}

	go func() {
		defer sub.Unsubscribe()
		for {
			select {
			case h := <-heads:
				fn(chain.Block{Number: h.Number.Uint64(), Time: time.Unix(int64(h.Time), 0).UTC()})
			case err, ok := <-sub.Err():
				if ok && err != nil {
					s.log.WithError(err).Warn("head subscription failed")
				}
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return cancel, nil
}

// SubscribeBalance polls the balance of addr on every new head and calls
// fn when it changes.
func (s *Service) SubscribeBalance(ctx context.Context, addr string, fn func(decimal.Decimal)) (func(), error) {
	a, err := parseAddress(addr)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	var last *big.Int
	unsub, err := s.SubscribeBlocks(ctx, func(b chain.Block) {
		wei, err := s.backend.BalanceAt(ctx, a, nil)
		if err != nil {
			s.log.WithError(err).WithField("block", b.Number).Warn("balance poll failed")
			return
		}
		if last != nil && last.Cmp(wei) == 0 {
			return
		}
		last = wei
		fn(FromWei(wei))
	})
	if err != nil {
		cancel()
		return nil, err
	}
	return func() {
		unsub()
		cancel()
	}, nil
}
