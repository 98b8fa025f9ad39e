package devnet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const (
	alice = "alice.devnet"
	bob   = "bob.devnet"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type testNet struct {
	mem    *chain.Memory
	server *Server
	http   *httptest.Server
	client *Client
}

func newTestNet(t *testing.T) *testNet {
	t.Helper()
	mem := chain.NewMemory(chain.MemoryOptions{
		Price:    decimal.NewFromInt(1),
		Funds:    decimal.NewFromInt(100),
		Accounts: []chain.Account{{Address: alice, Name: "Alice"}, {Address: bob, Name: "Bob"}},
		Now:      func() time.Time { return testTime },
	})
	logger, _ := test.NewNullLogger()
	srv := NewServer(mem, ServerOptions{Logger: logger})
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		hs.Close()
	})
	return &testNet{
		mem:    mem,
		server: srv,
		http:   hs,
		client: NewClient(hs.URL+"/", ClientOptions{Logger: logger}),
	}
}

func TestClientSignIn(t *testing.T) {
	n := newTestNet(t)
	ctx := context.Background()

	accounts, err := n.client.Accounts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []chain.Account{{Address: alice, Name: "Alice"}, {Address: bob, Name: "Bob"}}
	if diff := cmp.Diff(want, accounts); diff != "" {
		t.Errorf("Accounts mismatch (-want +got):\n%v", diff)
	}

	if err := n.client.SignIn(ctx); err != nil {
		t.Fatal(err)
	}
	if got := n.client.CurrentAccount(); got != alice {
		t.Errorf("CurrentAccount() = %q, want %q", got, alice)
	}
	n.client.SignOut()
	if err := n.client.MintPixels(ctx, 0, 1, 1); !errors.Is(err, chain.ErrNotSignedIn) {
		t.Errorf("err = %v, want ErrNotSignedIn", err)
	}
}

func TestClientRoundTrip(t *testing.T) {
	n := newTestNet(t)
	ctx := context.Background()
	c := n.client

	c.UseAccount(bob)
	if err := c.MintPixels(ctx, 19, 2, 3); err != nil {
		t.Fatal(err)
	}
	if err := c.MergePixels(ctx, 18, 2, 2); err != nil {
		t.Fatal(err)
	}
	c.UseAccount(alice)
	if err := c.MintPixels(ctx, 7, 3, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.MergePixels(ctx, 7, 2, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.MergePixels(ctx, 9, 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := c.PickPixels(ctx, 7, 2, 1); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPixelImage(ctx, 7, "QmRef", 2, 2); err != nil {
		t.Fatal(err)
	}

	areas, err := c.UncoveredPixels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	wantAreas := []chain.Area{
		{ID: 6, Width: 1, Height: 1},
		{ID: 7, Width: 2, Height: 2},
		{ID: 9, Width: 1, Height: 2},
		{ID: 18, Width: 2, Height: 2},
		{ID: 19, Width: 1, Height: 1},
	}
	if diff := cmp.Diff(wantAreas, areas); diff != "" {
		t.Errorf("UncoveredPixels mismatch (-want +got):\n%v", diff)
	}

	pixels, err := c.Pixels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pixels) != 12 {
		t.Errorf("got %d pixels, want 12", len(pixels))
	}
	if !pixels[0].Minted.Equal(testTime) {
		t.Errorf("minted = %v, want %v", pixels[0].Minted, testTime)
	}

	picks, err := c.PickedPixels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]chain.PickCount{{ID: 7, Count: 1}, {ID: 8, Count: 1}}, picks); diff != "" {
		t.Errorf("PickedPixels mismatch (-want +got):\n%v", diff)
	}
	mine, err := c.AccountPickedPixels(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]uint64{7, 8}, mine); diff != "" {
		t.Errorf("AccountPickedPixels mismatch (-want +got):\n%v", diff)
	}
	none, err := c.AccountPickedPixels(ctx, bob)
	if err != nil || len(none) != 0 {
		t.Errorf("bob picks = %v, %v; want none", none, err)
	}

	images, err := c.PixelImages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]chain.PixelImage{{ID: 7, ContentRef: "QmRef", Width: 2, Height: 2}}, images); diff != "" {
		t.Errorf("PixelImages mismatch (-want +got):\n%v", diff)
	}

	bal, err := c.Balance(ctx, alice)
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(decimal.NewFromInt(94)) {
		t.Errorf("balance = %s, want 94", bal)
	}

	block, err := c.CurrentBlock(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if block.Number != 7 {
		t.Errorf("block = %d, want 7", block.Number)
	}
}

func TestClientErrorMapping(t *testing.T) {
	n := newTestNet(t)
	ctx := context.Background()
	c := n.client
	c.UseAccount(alice)
	if err := c.MintPixels(ctx, 7, 3, 2); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		account string
		call    func() error
		want    error
	}{
		{"already minted", bob, func() error { return c.MintPixels(ctx, 7, 1, 1) }, chain.ErrAlreadyMinted},
		{"not owner", bob, func() error { return c.MergePixels(ctx, 7, 1, 1) }, chain.ErrNotOwner},
		{"not minted", alice, func() error { return c.SetPixelImage(ctx, 40, "QmRef", 1, 1) }, chain.ErrNotMinted},
		{"insufficient funds", bob, func() error { return c.MintPixels(ctx, 100, 11, 10) }, chain.ErrInsufficientFunds},
		{"invalid area", alice, func() error { return c.PickPixels(ctx, 1, 0, 1) }, chain.ErrInvalidArea},
		{"unknown account", "mallory", func() error { return c.MintPixels(ctx, 100, 1, 1) }, chain.ErrNotSignedIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.UseAccount(tt.account)
			err := tt.call()
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			var remote *RemoteError
			if !errors.As(err, &remote) {
				t.Errorf("err = %T, want *RemoteError", err)
			}
		})
	}
}

func TestServerBadRequest(t *testing.T) {
	n := newTestNet(t)
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed json", "/api/mint", `{`, http.StatusBadRequest},
		{"image without ref", "/api/image", `{"id": 7, "width": 1, "height": 1}`, http.StatusBadRequest},
		{"negative fund", "/api/fund", `{"address": "alice.devnet", "amount": "-1"}`, http.StatusBadRequest},
		{"unknown fund account", "/api/fund", `{"address": "mallory", "amount": "1"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(AccountHeader, alice)
			w := httptest.NewRecorder()
			n.server.Handler().ServeHTTP(w, req)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body)
			}
			if !strings.Contains(w.Body.String(), `"code":1000`) {
				t.Errorf("body = %s, want code 1000", w.Body)
			}
		})
	}
}

func TestServerCORS(t *testing.T) {
	n := newTestNet(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/mint", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", AccountHeader)
	w := httptest.NewRecorder()
	n.server.Handler().ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Headers"); !strings.Contains(strings.ToLower(got), strings.ToLower(AccountHeader)) {
		t.Errorf("Allow-Headers = %q, want it to include %s", got, AccountHeader)
	}
}

func TestFaucet(t *testing.T) {
	n := newTestNet(t)
	ctx := context.Background()
	if err := n.client.Fund(ctx, bob, decimal.RequireFromString("2.5")); err != nil {
		t.Fatal(err)
	}
	bal, err := n.client.Balance(ctx, bob)
	if err != nil {
		t.Fatal(err)
	}
	if !bal.Equal(decimal.RequireFromString("102.5")) {
		t.Errorf("balance = %s, want 102.5", bal)
	}
}

// waitForClients blocks until the hub has n connections.
func waitForClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for h.Len() != n {
		if time.Now().After(deadline) {
			t.Fatalf("hub has %d clients, want %d", h.Len(), n)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSubscribeBlocks(t *testing.T) {
	n := newTestNet(t)
	ctx := context.Background()

	got := make(chan chain.Block, 8)
	unsub, err := n.client.SubscribeBlocks(ctx, func(b chain.Block) { got <- b })
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	waitForClients(t, n.server.Hub(), 1)

	n.mem.Advance()
	select {
	case b := <-got:
		if b.Number != 1 || !b.Time.Equal(testTime) {
			t.Errorf("block = %+v, want number 1 at %v", b, testTime)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no block received")
	}
}

func TestSubscribeBalance(t *testing.T) {
	n := newTestNet(t)
	ctx := context.Background()

	got := make(chan string, 8)
	unsub, err := n.client.SubscribeBalance(ctx, alice, func(d decimal.Decimal) { got <- d.String() })
	if err != nil {
		t.Fatal(err)
	}
	defer unsub()
	waitForClients(t, n.server.Hub(), 1)

	// Bob's mint does not touch alice's balance.
	if err := n.mem.MintAs(ctx, bob, 40, 1, 1); err != nil {
		t.Fatal(err)
	}
	if err := n.mem.MintAs(ctx, alice, 7, 2, 2); err != nil {
		t.Fatal(err)
	}
	select {
	case v := <-got:
		if v != "96" {
			t.Errorf("balance = %s, want 96", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no balance received")
	}
	select {
	case v := <-got:
		t.Errorf("unexpected balance update %s", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribeDisconnects(t *testing.T) {
	n := newTestNet(t)
	unsub, err := n.client.SubscribeBlocks(context.Background(), func(chain.Block) {})
	if err != nil {
		t.Fatal(err)
	}
	waitForClients(t, n.server.Hub(), 1)
	unsub()
	waitForClients(t, n.server.Hub(), 0)
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	n := newTestNet(t)
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := n.client.SubscribeBlocks(ctx, func(chain.Block) {}); err != nil {
		t.Fatal(err)
	}
	waitForClients(t, n.server.Hub(), 1)
	cancel()
	waitForClients(t, n.server.Hub(), 0)
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	n := newTestNet(t)
	if _, err := n.client.SubscribeBlocks(context.Background(), func(chain.Block) {}); err != nil {
		t.Fatal(err)
	}
	waitForClients(t, n.server.Hub(), 1)
	n.server.Close()
	if got := n.server.Hub().Len(); got != 0 {
		t.Errorf("Len() = %d after Close", got)
	}
	if _, err := n.client.SubscribeBlocks(context.Background(), func(chain.Block) {}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := n.server.Hub().Len(); got != 0 {
		t.Errorf("closed hub accepted a client")
	}
}

func TestRemoteErrorUnwrap(t *testing.T) {
	err := &RemoteError{Code: 1003, Message: "merge 7: chain: not the pixel owner"}
	if !errors.Is(err, chain.ErrNotOwner) {
		t.Error("RemoteError should unwrap to ErrNotOwner")
	}
	if (&RemoteError{Code: codeInternal}).Unwrap() != nil {
		t.Error("internal errors have no sentinel")
	}
	if got := err.Error(); got != "devnet: merge 7: chain: not the pixel owner" {
		t.Errorf("Error() = %q", got)
	}
}
