package chain

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

const (
	alice = "alice.testnet"
	bob   = "bob.testnet"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	return NewMemory(MemoryOptions{
		Price:    decimal.NewFromInt(1),
		Funds:    decimal.NewFromInt(100),
		Accounts: []Account{{Address: alice, Name: "Alice"}, {Address: bob, Name: "Bob"}},
		Now:      func() time.Time { return testTime },
	})
}

func mustDo(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func TestMemorySignIn(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	if got := m.CurrentAccount(); got != "" {
		t.Errorf("CurrentAccount() = %q before sign in", got)
	}
	if err := m.MintPixels(ctx, 0, 1, 1); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("MintPixels err = %v, want ErrNotSignedIn", err)
	}

	mustDo(t, m.SignIn(ctx))
	if got := m.CurrentAccount(); got != alice {
		t.Errorf("CurrentAccount() = %q, want %q", got, alice)
	}
	mustDo(t, m.UseAccount(bob))
	if got := m.CurrentAccount(); got != bob {
		t.Errorf("CurrentAccount() = %q, want %q", got, bob)
	}
	if err := m.UseAccount("mallory"); err == nil {
		t.Error("UseAccount should reject unknown accounts")
	}

	m.SignOut()
	if got := m.CurrentAccount(); got != "" {
		t.Errorf("CurrentAccount() = %q after sign out", got)
	}
}

func TestMemorySignInNoAccounts(t *testing.T) {
	m := NewMemory(MemoryOptions{})
	if err := m.SignIn(context.Background()); !errors.Is(err, ErrNotSignedIn) {
		t.Errorf("SignIn err = %v, want ErrNotSignedIn", err)
	}
}

func TestMemoryBatchMint(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	mustDo(t, m.MintAs(ctx, alice, 7, 3, 2))

	pixels, err := m.Pixels(ctx)
	mustDo(t, err)
	var want []Pixel
	for _, id := range []uint64{0, 1, 7, 8, 9, 10} {
		want = append(want, Pixel{ID: id, Owner: alice, Minted: testTime})
	}
	if diff := cmp.Diff(want, pixels); diff != "" {
		t.Errorf("Pixels mismatch (-want +got):\n%v", diff)
	}

	bal, err := m.Balance(ctx, alice)
	mustDo(t, err)
	if !bal.Equal(decimal.NewFromInt(94)) {
		t.Errorf("balance = %s, want 94", bal)
	}
}

func TestMemoryMintErrors(t *testing.T) {
	tests := []struct {
		name    string
		account string
		id      uint64
		w, h    int
		want    error
	}{
		{"overlap", bob, 0, 2, 2, ErrAlreadyMinted},
		{"zero width", alice, 40, 0, 1, ErrInvalidArea},
		{"too wide", alice, 40, 256, 1, ErrInvalidArea},
		{"too expensive", bob, 100, 11, 10, ErrInsufficientFunds},
		{"unknown account", "mallory", 100, 1, 1, ErrNotSignedIn},
		{"no account", "", 100, 1, 1, ErrNotSignedIn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMemory(t)
			ctx := context.Background()
			mustDo(t, m.MintAs(ctx, alice, 7, 3, 2))

			err := m.MintAs(ctx, tt.account, tt.id, tt.w, tt.h)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			pixels, _ := m.Pixels(ctx)
			if len(pixels) != 6 {
				t.Errorf("failed mint changed state: %d pixels", len(pixels))
			}
		})
	}
}

func TestMemoryMintCanceled(t *testing.T) {
	m := newTestMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.MintAs(ctx, alice, 0, 1, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestMemoryMerge(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	mustDo(t, m.MintAs(ctx, bob, 19, 2, 3))
	mustDo(t, m.MintAs(ctx, alice, 7, 3, 2))
	mustDo(t, m.MergeAs(ctx, alice, 7, 3, 2))

	for _, sub := range []uint64{0, 8, 1, 9, 10} {
		root, ok := m.MergedInto(sub)
		if !ok || root != 7 {
			t.Errorf("MergedInto(%d) = %d, %v; want 7, true", sub, root, ok)
		}
	}
	if _, ok := m.MergedInto(7); ok {
		t.Error("the merge root should not be merged into itself")
	}
}

func TestMemoryMergeErrors(t *testing.T) {
	tests := []struct {
		name    string
		account string
		id      uint64
		w, h    int
		want    error
	}{
		{"root owned by someone else", alice, 19, 1, 1, ErrNotOwner},
		{"sub cell owned by someone else", bob, 6, 2, 1, ErrNotOwner},
		{"root not minted", alice, 40, 1, 1, ErrNotMinted},
		{"sub cell not minted", alice, 10, 1, 2, ErrNotMinted},
		{"bad area", alice, 7, 0, 0, ErrInvalidArea},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMemory(t)
			ctx := context.Background()
			mustDo(t, m.MintAs(ctx, bob, 19, 2, 3))
			mustDo(t, m.MintAs(ctx, alice, 7, 3, 2))

			if err := m.MergeAs(ctx, tt.account, tt.id, tt.w, tt.h); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			areas, _ := m.UncoveredPixels(ctx)
			if len(areas) != 12 {
				t.Errorf("failed merge changed state: %d uncovered", len(areas))
			}
		})
	}
}

func TestMemoryUncoveredPixels(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	mustDo(t, m.MintAs(ctx, bob, 19, 2, 3))
	mustDo(t, m.MergeAs(ctx, bob, 18, 2, 2))

	mustDo(t, m.MintAs(ctx, alice, 7, 3, 2))
	mustDo(t, m.MergeAs(ctx, alice, 7, 2, 2))
	mustDo(t, m.MergeAs(ctx, alice, 9, 1, 2))

	got, err := m.UncoveredPixels(ctx)
	mustDo(t, err)
	want := []Area{
		{ID: 6, Width: 1, Height: 1},
		{ID: 7, Width: 2, Height: 2},
		{ID: 9, Width: 1, Height: 2},
		{ID: 18, Width: 2, Height: 2},
		{ID: 19, Width: 1, Height: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("UncoveredPixels mismatch (-want +got):\n%v", diff)
	}
}

func TestMemoryPick(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	mustDo(t, m.PickAs(ctx, alice, 7, 2, 1))
	mustDo(t, m.PickAs(ctx, bob, 7, 1, 2))
	mustDo(t, m.PickAs(ctx, bob, 7, 1, 1))

	got, err := m.PickedPixels(ctx)
	mustDo(t, err)
	want := []PickCount{{ID: 0, Count: 1}, {ID: 7, Count: 3}, {ID: 8, Count: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PickedPixels mismatch (-want +got):\n%v", diff)
	}

	tests := []struct {
		addr string
		want []uint64
	}{
		{alice, []uint64{7, 8}},
		{bob, []uint64{0, 7}},
		{"mallory", []uint64{}},
	}
	for _, tt := range tests {
		got, err := m.AccountPickedPixels(ctx, tt.addr)
		mustDo(t, err)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("AccountPickedPixels(%s) mismatch (-want +got):\n%v", tt.addr, diff)
		}
	}
}

func TestMemorySetPixelImage(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	mustDo(t, m.MintAs(ctx, alice, 7, 3, 2))

	if err := m.SetImageAs(ctx, bob, 7, "QmRef", 3, 2); !errors.Is(err, ErrNotOwner) {
		t.Errorf("bob err = %v, want ErrNotOwner", err)
	}
	if err := m.SetImageAs(ctx, alice, 40, "QmRef", 1, 1); !errors.Is(err, ErrNotMinted) {
		t.Errorf("unminted err = %v, want ErrNotMinted", err)
	}
	if err := m.SetImageAs(ctx, alice, 7, "", 3, 2); err == nil {
		t.Error("empty ref should fail")
	}
	mustDo(t, m.SetImageAs(ctx, alice, 7, "QmRef", 3, 2))
	mustDo(t, m.SetImageAs(ctx, alice, 7, "QmNewer", 3, 2))

	got, err := m.PixelImages(ctx)
	mustDo(t, err)
	want := []PixelImage{{ID: 7, ContentRef: "QmNewer", Width: 3, Height: 2}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PixelImages mismatch (-want +got):\n%v", diff)
	}
}

func TestMemoryBlocksAdvanceOnWrite(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()
	mustDo(t, m.MintAs(ctx, alice, 0, 1, 1))
	mustDo(t, m.PickAs(ctx, alice, 0, 1, 1))
	if got := m.Advance().Number; got != 3 {
		t.Errorf("block = %d, want 3", got)
	}
	if got := m.CurrentBlock().Number; got != 3 {
		t.Errorf("CurrentBlock = %d, want 3", got)
	}
}

func TestMemorySubscriptions(t *testing.T) {
	m := newTestMemory(t)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		blocks   []uint64
		balances []string
	)
	unsubBlocks, err := m.SubscribeBlocks(ctx, func(b Block) {
		mu.Lock()
		blocks = append(blocks, b.Number)
		mu.Unlock()
	})
	mustDo(t, err)
	unsubBalance, err := m.SubscribeBalance(ctx, alice, func(d decimal.Decimal) {
		mu.Lock()
		balances = append(balances, d.String())
		mu.Unlock()
	})
	mustDo(t, err)

	mustDo(t, m.MintAs(ctx, alice, 0, 2, 1))
	mustDo(t, m.MintAs(ctx, bob, 40, 1, 1))
	mustDo(t, m.Fund(alice, decimal.NewFromInt(10)))
	unsubBlocks()
	unsubBalance()
	m.Advance()

	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]uint64{1, 2, 3}, blocks); diff != "" {
		t.Errorf("blocks mismatch (-want +got):\n%v", diff)
	}
	if diff := cmp.Diff([]string{"98", "108"}, balances); diff != "" {
		t.Errorf("balances mismatch (-want +got):\n%v", diff)
	}
}

func TestMemorySubscriptionEndsWithContext(t *testing.T) {
	m := newTestMemory(t)
	ctx, cancel := context.WithCancel(context.Background())

	got := make(chan uint64, 8)
	_, err := m.SubscribeBlocks(ctx, func(b Block) { got <- b.Number })
	mustDo(t, err)
	m.Advance()
	cancel()

	// AfterFunc runs on its own goroutine; wait for the watcher to go.
	deadline := time.Now().Add(5 * time.Second)
	for {
		m.watchMu.Lock()
		n := len(m.watchers)
		m.watchMu.Unlock()
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("watcher not removed after cancel")
		}
		time.Sleep(time.Millisecond)
	}
	m.Advance()
	if len(got) != 1 {
		t.Errorf("received %d blocks, want 1", len(got))
	}
}

func TestMemoryConcurrentMints(t *testing.T) {
	m := NewMemory(MemoryOptions{
		Accounts: []Account{{Address: alice}, {Address: bob}},
	})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, acct := range []string{alice, bob} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = m.MintAs(ctx, acct, 7, 3, 2)
		}()
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if errors.Is(err, ErrAlreadyMinted) {
			failed++
		}
	}
	if failed != 1 {
		t.Errorf("errors = %v, want exactly one ErrAlreadyMinted", errs)
	}
}
