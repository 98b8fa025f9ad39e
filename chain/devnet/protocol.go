// Package devnet serves an in-memory pixel contract over HTTP for local
// development, and provides the chain.Service client that talks to it.
//
// JSON endpoints live under /api and answer with a {code, msg, data,
// timestamp} envelope. Writes act for the account named in the X-Account
// header. /ws streams block and balance messages.
package devnet

import (
	"errors"
	"net/http"

	"github.com/phanxgames/pixelmap/chain"
	"github.com/shopspring/decimal"
)

// AccountHeader names the account a write request acts for.
const AccountHeader = "X-Account"

const (
	codeSuccess    = 0
	codeBadRequest = 1000
	codeInternal   = 1500
)

var errorCodes = []struct {
	code   int
	err    error
	status int
}{
	{1001, chain.ErrNotSignedIn, http.StatusUnauthorized},
	{1002, chain.ErrAlreadyMinted, http.StatusConflict},
	{1003, chain.ErrNotOwner, http.StatusForbidden},
	{1004, chain.ErrNotMinted, http.StatusNotFound},
	{1005, chain.ErrInsufficientFunds, http.StatusPaymentRequired},
	{1006, chain.ErrInvalidArea, http.StatusBadRequest},
}

// classify maps a contract error to its wire code and HTTP status.
func classify(err error) (code, status int) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.code, e.status
		}
	}
	return codeInternal, http.StatusInternalServerError
}

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Code      int    `json:"code"`
	Msg       string `json:"msg"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// AreaRequest is the body of mint, pick and merge requests.
type AreaRequest struct {
	ID     uint64 `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ImageRequest is the body of an image placement request.
type ImageRequest struct {
	ID     uint64 `json:"id"`
	Ref    string `json:"ref" binding:"required"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// FundRequest is the body of a faucet request.
type FundRequest struct {
	Address string          `json:"address" binding:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

type balanceData struct {
	Balance decimal.Decimal `json:"balance"`
}

// Message types sent over /ws.
const (
	MessageBlock   = "block"
	MessageBalance = "balance"
)

// Message is one websocket update.
type Message struct {
	Type    string           `json:"type"`
	Block   *chain.Block     `json:"block,omitempty"`
	Address string           `json:"address,omitempty"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
}

// RemoteError is a contract error reported by the devnet. It unwraps to
// the matching chain sentinel error.
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return "devnet: " + e.Message
}

func (e *RemoteError) Unwrap() error {
	for _, c := range errorCodes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}
