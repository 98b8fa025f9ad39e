// Package chain defines the contract data service the map talks to and the
// backends that implement it.
//
// A [Service] reads minted cells, pick counts and uploaded images, and
// submits mint, pick, merge and image transactions for the signed-in
// account. Backends are created per [Platform] through a [Registry]:
//
//	reg := chain.NewRegistry()
//	reg.Register(chain.InMemory, func(context.Context) (chain.Service, error) {
//		return chain.NewMemory(chain.MemoryOptions{}), nil
//	})
//	svc, err := reg.Service(ctx, chain.InMemory)
//
// Backends that can push updates also implement [Subscriber].
package chain

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownPlatform   = errors.New("chain: unknown platform")
	ErrNotSignedIn       = errors.New("chain: not signed in")
	ErrAlreadyMinted     = errors.New("chain: pixel already minted")
	ErrNotOwner          = errors.New("chain: not the pixel owner")
	ErrNotMinted         = errors.New("chain: pixel not minted")
	ErrInsufficientFunds = errors.New("chain: insufficient funds")
	ErrInvalidArea       = errors.New("chain: invalid area")
)

// Account is a wallet address with a display name.
type Account struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// Pixel is a minted cell.
type Pixel struct {
	ID     uint64    `json:"id"`
	Owner  string    `json:"owner"`
	Minted time.Time `json:"minted"`
}

// PickCount is the number of times a cell has been picked.
type PickCount struct {
	ID    uint64 `json:"id"`
	Count int    `json:"count"`
}

// PixelImage is content placed over a block of cells anchored at ID.
type PixelImage struct {
	ID         uint64 `json:"id"`
	ContentRef string `json:"ref"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// Area is a block of cells anchored at ID. A cell that was never merged is
// a 1x1 area.
type Area struct {
	ID     uint64 `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Block identifies a block produced by the chain.
type Block struct {
	Number uint64    `json:"number"`
	Time   time.Time `json:"time"`
}

// Service is the contract data service. Write operations act for the
// account returned by CurrentAccount and return ErrNotSignedIn when there
// is none. Area operations expand (id, w, h) into cells with
// spatial.IDsInRect.
type Service interface {
	SignIn(ctx context.Context) error
	SignOut()
	// CurrentAccount returns the signed-in address, or "".
	CurrentAccount() string
	Accounts(ctx context.Context) ([]Account, error)
	Balance(ctx context.Context, addr string) (decimal.Decimal, error)

	Pixels(ctx context.Context) ([]Pixel, error)
	PickedPixels(ctx context.Context) ([]PickCount, error)
	AccountPickedPixels(ctx context.Context, addr string) ([]uint64, error)
	PixelImages(ctx context.Context) ([]PixelImage, error)
	UncoveredPixels(ctx context.Context) ([]Area, error)

	MintPixels(ctx context.Context, id uint64, w, h int) error
	PickPixels(ctx context.Context, id uint64, w, h int) error
	MergePixels(ctx context.Context, id uint64, w, h int) error
	SetPixelImage(ctx context.Context, id uint64, ref string, w, h int) error
}

// Subscriber is implemented by services that push chain updates. Each
// subscription ends when the returned function is called or ctx is done.
type Subscriber interface {
	SubscribeBlocks(ctx context.Context, fn func(Block)) (unsubscribe func(), err error)
	SubscribeBalance(ctx context.Context, addr string, fn func(decimal.Decimal)) (unsubscribe func(), err error)
}

// CheckArea rejects empty blocks and blocks wider than a contract u8.
func CheckArea(w, h int) error {
	if w <= 0 || h <= 0 || w > 255 || h > 255 {
		return ErrInvalidArea
	}
	return nil
}
