package mapview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/phanxgames/pixelmap"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/phanxgames/pixelmap/spatial"
	"github.com/phanxgames/pixelmap/storage"
	"github.com/sirupsen/logrus"
	"github.com/tanema/gween/ease"
	"golang.org/x/sync/errgroup"
)

var (
	ErrNoSelection  = errors.New("mapview: no selection")
	ErrNoUploader   = errors.New("mapview: no uploader configured")
	ErrNoSubscriber = errors.New("mapview: service does not publish blocks")
)

// mintFlashDuration is how long freshly minted tiles take to fade from white
// to the owned tint, in seconds.
const mintFlashDuration = 0.6

type ControllerOptions struct {
	Service  chain.Service
	Uploader storage.Uploader
	// Gateway resolves image refs. Empty uses storage.DefaultGateway.
	Gateway string
	Logger  logrus.FieldLogger
	// Now stamps locally minted pixels. Defaults to time.Now.
	Now func() time.Time
}

// Controller keeps a local copy of the chain state shown on a scene and runs
// user actions against the chain service.
//
// Service calls block, so Load, Mint, Pick, Merge and Upload are meant to run
// off the frame goroutine. Scene changes they produce are queued and applied
// by Update, which must run on the frame goroutine, usually from
// SceneOptions.OnCustomUpdate.
type Controller struct {
	scene   Scene
	svc     chain.Service
	up      storage.Uploader
	gateway string
	log     logrus.FieldLogger
	now     func() time.Time

	mu        sync.Mutex
	selection pixelmap.SelectionRect
	pixels    map[uint64]chain.Pixel
	picks     map[uint64]int
	mine      map[uint64]bool
	images    map[uint64]chain.PixelImage
	areas     map[uint64]chain.Area
	queue     []func(Scene)
}

// NewController creates a controller drawing on scene.
func NewController(scene Scene, opts ControllerOptions) *Controller {
	if scene == nil || opts.Service == nil {
		panic("mapview: NewController needs a scene and a chain service")
	}
	c := &Controller{
		scene:   scene,
		svc:     opts.Service,
		up:      opts.Uploader,
		gateway: opts.Gateway,
		log:     opts.Logger,
		now:     opts.Now,
		pixels:  make(map[uint64]chain.Pixel),
		picks:   make(map[uint64]int),
		mine:    make(map[uint64]bool),
		images:  make(map[uint64]chain.PixelImage),
		areas:   make(map[uint64]chain.Area),
	}
	if c.log == nil {
		c.log = logger
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Service returns the chain service the controller talks to.
func (c *Controller) Service() chain.Service { return c.svc }

// Select records the selection later actions apply to. Wire it to
// SceneOptions.OnSelectEnd. A successful action clears it.
func (c *Controller) Select(r pixelmap.SelectionRect) {
	c.mu.Lock()
	c.selection = r
	c.mu.Unlock()
}

// Selection returns the recorded selection.
func (c *Controller) Selection() pixelmap.SelectionRect {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection
}

// ClearSelection forgets the recorded selection and clears the scene's.
func (c *Controller) ClearSelection() {
	c.mu.Lock()
	c.selection = pixelmap.SelectionRect{}
	c.enqueueLocked(func(s Scene) { s.ClearSelect() })
	c.mu.Unlock()
}

func (c *Controller) enqueueLocked(fn func(Scene)) {
	c.queue = append(c.queue, fn)
}

// Update applies queued scene changes. Call it on the frame goroutine.
func (c *Controller) Update() {
	c.mu.Lock()
	q := c.queue
	c.queue = nil
	c.mu.Unlock()
	for _, fn := range q {
		fn(c.scene)
	}
}

// Load fetches the full map state in parallel and queues it for drawing.
// Images already shown are not loaded again.
func (c *Controller) Load(ctx context.Context) error {
	account := c.svc.CurrentAccount()
	var (
		pixels []chain.Pixel
		picks  []chain.PickCount
		mine   []uint64
		images []chain.PixelImage
		areas  []chain.Area
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if pixels, err = c.svc.Pixels(gctx); err != nil {
			return fmt.Errorf("load pixels: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if picks, err = c.svc.PickedPixels(gctx); err != nil {
			return fmt.Errorf("load picks: %w", err)
		}
		return nil
	})
	if account != "" {
		g.Go(func() error {
			var err error
			if mine, err = c.svc.AccountPickedPixels(gctx, account); err != nil {
				return fmt.Errorf("load account picks: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		if images, err = c.svc.PixelImages(gctx); err != nil {
			return fmt.Errorf("load images: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if areas, err = c.svc.UncoveredPixels(gctx); err != nil {
			return fmt.Errorf("load areas: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.pixels)
	for _, p := range pixels {
		c.pixels[p.ID] = p
	}
	clear(c.picks)
	for _, p := range picks {
		c.picks[p.ID] = p.Count
	}
	clear(c.mine)
	for _, id := range mine {
		c.mine[id] = true
	}
	clear(c.areas)
	for _, a := range areas {
		c.areas[a.ID] = a
	}
	var fresh []chain.PixelImage
	for _, img := range images {
		if old, ok := c.images[img.ID]; ok && old == img {
			continue
		}
		c.images[img.ID] = img
		fresh = append(fresh, img)
	}

	pickList, mineList := c.pickSnapshotLocked()
	gateway := c.gateway
	c.enqueueLocked(func(s Scene) {
		ReflectMinted(s, pixels, account)
		ReflectPicked(s, pickList, mineList)
		ReflectImages(ctx, s, fresh, gateway)
	})
	c.log.WithFields(logrus.Fields{
		"pixels": len(pixels),
		"picks":  len(picks),
		"images": len(fresh),
	}).Debug("map loaded")
	return nil
}

func (c *Controller) pickSnapshotLocked() ([]chain.PickCount, []uint64) {
	picks := make([]chain.PickCount, 0, len(c.picks))
	for _, id := range slices.Sorted(maps.Keys(c.picks)) {
		picks = append(picks, chain.PickCount{ID: id, Count: c.picks[id]})
	}
	return picks, slices.Sorted(maps.Keys(c.mine))
}

// target returns the recorded selection and its anchor pixel id.
func (c *Controller) target() (pixelmap.SelectionRect, uint64, error) {
	r := c.Selection()
	if r.Empty() {
		return r, 0, ErrNoSelection
	}
	return r, CellID(r.X, r.Y), nil
}

// Mint mints the selected cells for the signed-in account.
func (c *Controller) Mint(ctx context.Context) error {
	r, id, err := c.target()
	if err != nil {
		return err
	}
	if err := c.svc.MintPixels(ctx, id, r.Width, r.Height); err != nil {
		return fmt.Errorf("mint %d %dx%d: %w", id, r.Width, r.Height, err)
	}
	account := c.svc.CurrentAccount()
	minted := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = pixelmap.SelectionRect{}
	for _, cell := range spatial.IDsInRect(id, r.Width, r.Height) {
		c.pixels[cell] = chain.Pixel{ID: cell, Owner: account, Minted: minted}
		if _, ok := c.areas[cell]; !ok {
			c.areas[cell] = chain.Area{ID: cell, Width: 1, Height: 1}
		}
	}
	c.enqueueLocked(func(s Scene) {
		for x, y := range spatial.Cells(r) {
			if !InWorld(x, y) {
				continue
			}
			n := s.SetTile(x, y, TintMintOwned, MintAlpha, LayerMint)
			n.SetTint(pixelmap.ColorWhite)
			s.Animate(pixelmap.TweenColor(n, TintMintOwned, mintFlashDuration, ease.OutQuad))
		}
		s.ClearSelect()
	})
	c.log.WithFields(logrus.Fields{"id": id, "width": r.Width, "height": r.Height}).Info("minted")
	return nil
}

// Pick records a pick of the selected cells for the signed-in account.
func (c *Controller) Pick(ctx context.Context) error {
	r, id, err := c.target()
	if err != nil {
		return err
	}
	if err := c.svc.PickPixels(ctx, id, r.Width, r.Height); err != nil {
		return fmt.Errorf("pick %d %dx%d: %w", id, r.Width, r.Height, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = pixelmap.SelectionRect{}
	for _, cell := range spatial.IDsInRect(id, r.Width, r.Height) {
		c.picks[cell]++
		c.mine[cell] = true
	}
	picks, mine := c.pickSnapshotLocked()
	c.enqueueLocked(func(s Scene) {
		ReflectPicked(s, picks, mine)
		s.ClearSelect()
	})
	c.log.WithFields(logrus.Fields{"id": id, "width": r.Width, "height": r.Height}).Info("picked")
	return nil
}

// Merge joins the selected cells into one area rooted at its top-left cell.
func (c *Controller) Merge(ctx context.Context) error {
	r, id, err := c.target()
	if err != nil {
		return err
	}
	if err := c.svc.MergePixels(ctx, id, r.Width, r.Height); err != nil {
		return fmt.Errorf("merge %d %dx%d: %w", id, r.Width, r.Height, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = pixelmap.SelectionRect{}
	for _, cell := range spatial.IDsInRect(id, r.Width, r.Height) {
		delete(c.areas, cell)
	}
	c.areas[id] = chain.Area{ID: id, Width: r.Width, Height: r.Height}
	c.enqueueLocked(func(s Scene) { s.ClearSelect() })
	c.log.WithFields(logrus.Fields{"id": id, "width": r.Width, "height": r.Height}).Info("merged")
	return nil
}

// Upload stores the content of r, sets it as the image of the selected area
// and queues it for display.
func (c *Controller) Upload(ctx context.Context, name string, r io.Reader) error {
	if c.up == nil {
		return ErrNoUploader
	}
	sel, id, err := c.target()
	if err != nil {
		return err
	}
	if c.svc.CurrentAccount() == "" {
		return chain.ErrNotSignedIn
	}
	ref, err := c.up.Upload(ctx, name, r)
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	if err := c.svc.SetPixelImage(ctx, id, ref, sel.Width, sel.Height); err != nil {
		return fmt.Errorf("set image %d: %w", id, err)
	}

	img := chain.PixelImage{ID: id, ContentRef: ref, Width: sel.Width, Height: sel.Height}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection = pixelmap.SelectionRect{}
	c.images[id] = img
	gateway := c.gateway
	c.enqueueLocked(func(s Scene) {
		ReflectImages(ctx, s, []chain.PixelImage{img}, gateway)
		s.ClearSelect()
	})
	c.log.WithFields(logrus.Fields{"id": id, "ref": ref}).Info("image set")
	return nil
}

// Describe summarizes grid cell (x, y) for display.
func (c *Controller) Describe(x, y int) string {
	if !InWorld(x, y) {
		return ""
	}
	id := CellID(x, y)
	var b strings.Builder
	fmt.Fprintf(&b, "pixel %d (%d, %d)", id, x-Offset, y-Offset)

	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pixels[id]; ok {
		fmt.Fprintf(&b, " owned by %s", p.Owner)
	}
	if a, ok := c.areaOfLocked(id); ok && a.Width*a.Height > 1 {
		fmt.Fprintf(&b, " in %dx%d area %d", a.Width, a.Height, a.ID)
	}
	if n := c.picks[id]; n > 0 {
		fmt.Fprintf(&b, ", %d picks", n)
	}
	return b.String()
}

// areaOfLocked returns the uncovered area containing pixel id.
func (c *Controller) areaOfLocked(id uint64) (chain.Area, bool) {
	if a, ok := c.areas[id]; ok {
		return a, true
	}
	x, y := spatial.IDToCoord(id)
	for _, a := range c.areas {
		if a.Width*a.Height == 1 {
			continue
		}
		ax, ay := spatial.IDToCoord(a.ID)
		r := spatial.Rect{X: ax, Y: ay, Width: a.Width, Height: a.Height}
		if r.Contains(x, y) {
			return a, true
		}
	}
	return chain.Area{}, false
}

// Follow reloads the map after every new block until ctx ends or the
// returned stop function is called. Blocks that arrive during a reload
// coalesce into one more reload.
func (c *Controller) Follow(ctx context.Context) (stop func(), err error) {
	sub, ok := c.svc.(chain.Subscriber)
	if !ok {
		return nil, ErrNoSubscriber
	}
	ctx, cancel := context.WithCancel(ctx)
	dirty := make(chan struct{}, 1)
	unsubscribe, err := sub.SubscribeBlocks(ctx, func(chain.Block) {
		select {
		case dirty <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("follow blocks: %w", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-dirty:
				if err := c.Load(ctx); err != nil && ctx.Err() == nil {
					c.log.WithError(err).Warn("reload after block failed")
				}
			}
		}
	}()
	return sync.OnceFunc(func() {
		unsubscribe()
		cancel()
		<-done
	}), nil
}
