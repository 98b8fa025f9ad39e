package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/phanxgames/pixelmap"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/phanxgames/pixelmap/chain/devnet"
	"github.com/phanxgames/pixelmap/chain/evm"
	"github.com/phanxgames/pixelmap/config"
	"github.com/phanxgames/pixelmap/storage"
	"github.com/sirupsen/logrus"
)

// memoryGateway prefixes refs held by the in-process content store.
const memoryGateway = "memory://ipfs/"

// newRegistry registers a factory for every platform this build can reach.
func newRegistry(cfg *config.Config, store *storage.Memory, logger *logrus.Logger) *chain.Registry {
	reg := chain.NewRegistry()

	reg.Register(chain.InMemory, func(ctx context.Context) (chain.Service, error) {
		price, funds, err := cfg.Devnet.Amounts()
		if err != nil {
			return nil, err
		}
		return chain.NewMemory(chain.MemoryOptions{
			Price:    price,
			Funds:    funds,
			Accounts: cfg.Devnet.ChainAccounts(),
		}), nil
	})

	reg.Register(chain.Devnet, func(ctx context.Context) (chain.Service, error) {
		return devnet.NewClient(cfg.Devnet.URL, devnet.ClientOptions{
			Logger: logger.WithField("component", "devnet"),
		}), nil
	})

	evmFactory := func(p chain.Platform) chain.Factory {
		return func(ctx context.Context) (chain.Service, error) {
			if cfg.EVM.RPC == "" || !common.IsHexAddress(cfg.EVM.Contract) {
				return nil, errors.New("evm.rpc and evm.contract must be set")
			}
			opts := evm.Options{
				Platform: p,
				Contract: common.HexToAddress(cfg.EVM.Contract),
				Logger:   logger.WithField("component", "evm"),
			}
			if cfg.EVM.ReadOnly {
				return evm.Dial(ctx, cfg.EVM.RPC, opts)
			}
			return evm.DialNode(ctx, cfg.EVM.RPC, opts)
		}
	}
	reg.Register(chain.Polygon, evmFactory(chain.Polygon))
	reg.Register(chain.Bsc, evmFactory(chain.Bsc))
	return reg
}

// memoryLoader decodes memoryGateway URLs from store and hands every other
// URL to next.
func memoryLoader(store *storage.Memory, next pixelmap.ImageLoader) pixelmap.ImageLoader {
	return pixelmap.ImageLoaderFunc(func(ctx context.Context, url string) (image.Image, error) {
		ref, ok := strings.CutPrefix(url, memoryGateway)
		if !ok {
			return next.Load(ctx, url)
		}
		data, err := store.Get(ref)
		if err != nil {
			return nil, err
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", ref, err)
		}
		return img, nil
	})
}
