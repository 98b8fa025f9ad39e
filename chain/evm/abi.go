package evm

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PixelLandABI is the ABI of the pixel contract deployed on EVM chains.
const PixelLandABI = `[
  {"type":"function","name":"mintPrice","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getPixels","stateMutability":"view","inputs":[],"outputs":[{"name":"ids","type":"uint256[]"},{"name":"owners","type":"address[]"},{"name":"minted","type":"uint64[]"}]},
  {"type":"function","name":"getPickCounts","stateMutability":"view","inputs":[],"outputs":[{"name":"ids","type":"uint256[]"},{"name":"counts","type":"uint32[]"}]},
  {"type":"function","name":"getAccountPicks","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256[]"}]},
  {"type":"function","name":"getImages","stateMutability":"view","inputs":[],"outputs":[{"name":"ids","type":"uint256[]"},{"name":"refs","type":"string[]"},{"name":"widths","type":"uint8[]"},{"name":"heights","type":"uint8[]"}]},
  {"type":"function","name":"getUncovered","stateMutability":"view","inputs":[],"outputs":[{"name":"ids","type":"uint256[]"},{"name":"widths","type":"uint8[]"},{"name":"heights","type":"uint8[]"}]},
  {"type":"function","name":"batchMint","stateMutability":"payable","inputs":[{"name":"id","type":"uint256"},{"name":"width","type":"uint8"},{"name":"height","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"pick","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"width","type":"uint8"},{"name":"height","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"merge","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"width","type":"uint8"},{"name":"height","type":"uint8"}],"outputs":[]},
  {"type":"function","name":"setImage","stateMutability":"nonpayable","inputs":[{"name":"id","type":"uint256"},{"name":"ref","type":"string"},{"name":"width","type":"uint8"},{"name":"height","type":"uint8"}],"outputs":[]}
]`

// Output layouts for the multi-value view functions. Field names follow
// the ABI output names.
type (
	pixelsResult struct {
		Ids    []*big.Int
		Owners []common.Address
		Minted []uint64
	}
	pickCountsResult struct {
		Ids    []*big.Int
		Counts []uint32
	}
	imagesResult struct {
		Ids     []*big.Int
		Refs    []string
		Widths  []uint8
		Heights []uint8
	}
	uncoveredResult struct {
		Ids     []*big.Int
		Widths  []uint8
		Heights []uint8
	}
)

const weiDecimals = 18

// FromWei converts a wei amount to whole native tokens.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -weiDecimals)
}

// ToWei converts whole native tokens to wei, truncating below one wei.
func ToWei(d decimal.Decimal) *big.Int {
	return d.Shift(weiDecimals).Truncate(0).BigInt()
}
