package devnet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type ClientOptions struct {
	HTTPClient *http.Client
	Dialer     *websocket.Dialer
	Logger     logrus.FieldLogger
}

// Client is a chain.Service backed by a devnet server.
type Client struct {
	base   string
	http   *http.Client
	dialer *websocket.Dialer
	log    logrus.FieldLogger

	mu      sync.RWMutex
	account string
}

var (
	_ chain.Service    = (*Client)(nil)
	_ chain.Subscriber = (*Client)(nil)
)

// NewClient creates a client for the devnet at baseURL, such as
// "http://127.0.0.1:9944".
func NewClient(baseURL string, opts ClientOptions) *Client {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger().WithField("component", "devnet")
	}
	return &Client{
		base:   strings.TrimRight(baseURL, "/"),
		http:   opts.HTTPClient,
		dialer: opts.Dialer,
		log:    opts.Logger,
	}
}

// do sends a request to /api<path> and decodes the envelope data into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("devnet: encode %s: %w", path, err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+"/api"+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if acct := c.CurrentAccount(); acct != "" {
		req.Header.Set(AccountHeader, acct)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("devnet: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var env struct {
		Code int             `json:"code"`
		Msg  string          `json:"msg"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("devnet: %s %s: status %d: %w", method, path, resp.StatusCode, err)
	}
	if env.Code != codeSuccess {
		return &RemoteError{Code: env.Code, Message: env.Msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("devnet: decode %s: %w", path, err)
	}
	return nil
}

// --- accounts ---

// SignIn signs in as the first devnet account.
func (c *Client) SignIn(ctx context.Context) error {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}
	if len(accounts) == 0 {
		return fmt.Errorf("sign in: %w: no accounts", chain.ErrNotSignedIn)
	}
	c.UseAccount(accounts[0].Address)
	return nil
}

// UseAccount acts as addr for later writes.
func (c *Client) UseAccount(addr string) {
	c.mu.Lock()
	c.account = addr
	c.mu.Unlock()
}

func (c *Client) SignOut() {
	c.UseAccount("")
}

func (c *Client) CurrentAccount() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.account
}

func (c *Client) Accounts(ctx context.Context) ([]chain.Account, error) {
	var out []chain.Account
	err := c.do(ctx, http.MethodGet, "/accounts", nil, &out)
	return out, err
}

func (c *Client) Balance(ctx context.Context, addr string) (decimal.Decimal, error) {
	var out balanceData
	err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(addr)+"/balance", nil, &out)
	return out.Balance, err
}

// Fund asks the devnet faucet to credit addr.
func (c *Client) Fund(ctx context.Context, addr string, amount decimal.Decimal) error {
	return c.do(ctx, http.MethodPost, "/fund", FundRequest{Address: addr, Amount: amount}, nil)
}

// CurrentBlock returns the latest devnet block.
func (c *Client) CurrentBlock(ctx context.Context) (chain.Block, error) {
	var out chain.Block
	err := c.do(ctx, http.MethodGet, "/block", nil, &out)
	return out, err
}

// --- reads ---

func (c *Client) Pixels(ctx context.Context) ([]chain.Pixel, error) {
	var out []chain.Pixel
	err := c.do(ctx, http.MethodGet, "/pixels", nil, &out)
	return out, err
}

func (c *Client) PickedPixels(ctx context.Context) ([]chain.PickCount, error) {
	var out []chain.PickCount
	err := c.do(ctx, http.MethodGet, "/picks", nil, &out)
	return out, err
}

func (c *Client) AccountPickedPixels(ctx context.Context, addr string) ([]uint64, error) {
	var out []uint64
	err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(addr)+"/picks", nil, &out)
	return out, err
}

func (c *Client) PixelImages(ctx context.Context) ([]chain.PixelImage, error) {
	var out []chain.PixelImage
	err := c.do(ctx, http.MethodGet, "/images", nil, &out)
	return out, err
}

func (c *Client) UncoveredPixels(ctx context.Context) ([]chain.Area, error) {
	var out []chain.Area
	err := c.do(ctx, http.MethodGet, "/uncovered", nil, &out)
	return out, err
}

// --- writes ---

func (c *Client) write(ctx context.Context, path string, body any) error {
	if c.CurrentAccount() == "" {
		return fmt.Errorf("%s: %w", strings.TrimPrefix(path, "/"), chain.ErrNotSignedIn)
	}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

func (c *Client) MintPixels(ctx context.Context, id uint64, w, h int) error {
	return c.write(ctx, "/mint", AreaRequest{ID: id, Width: w, Height: h})
}

func (c *Client) PickPixels(ctx context.Context, id uint64, w, h int) error {
	return c.write(ctx, "/pick", AreaRequest{ID: id, Width: w, Height: h})
}

func (c *Client) MergePixels(ctx context.Context, id uint64, w, h int) error {
	return c.write(ctx, "/merge", AreaRequest{ID: id, Width: w, Height: h})
}

func (c *Client) SetPixelImage(ctx context.Context, id uint64, ref string, w, h int) error {
	return c.write(ctx, "/image", ImageRequest{ID: id, Ref: ref, Width: w, Height: h})
}

// --- subscriptions ---

func (c *Client) wsURL() string {
	switch {
	case strings.HasPrefix(c.base, "https://"):
		return "wss://" + strings.TrimPrefix(c.base, "https://") + "/ws"
	case strings.HasPrefix(c.base, "http://"):
		return "ws://" + strings.TrimPrefix(c.base, "http://") + "/ws"
	}
	return c.base + "/ws"
}

// subscribe opens a websocket and passes every message to fn on a
// background goroutine until the returned function is called or ctx is
// done.
func (c *Client) subscribe(ctx context.Context, fn func(Message)) (func(), error) {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("devnet: dial ws: %w", err)
	}

	var once sync.Once
	stop := func() { once.Do(func() { conn.Close() }) }
	after := context.AfterFunc(ctx, stop)

	go func() {
		defer after()
		for {
			var msg Message
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure) && ctx.Err() == nil {
					c.log.WithError(err).Debug("ws subscription ended")
				}
				stop()
				return
			}
			fn(msg)
		}
	}()
	return stop, nil
}

func (c *Client) SubscribeBlocks(ctx context.Context, fn func(chain.Block)) (func(), error) {
	return c.subscribe(ctx, func(m Message) {
		if m.Type == MessageBlock && m.Block != nil {
			fn(*m.Block)
		}
	})
}

func (c *Client) SubscribeBalance(ctx context.Context, addr string, fn func(decimal.Decimal)) (func(), error) {
	return c.subscribe(ctx, func(m Message) {
		if m.Type == MessageBalance && m.Address == addr && m.Balance != nil {
			fn(*m.Balance)
		}
	})
}
