package pixelmap

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"net/http"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/hajimehoshi/ebiten/v2"
	"github.com/tanema/gween/ease"
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ImageLoader resolves an image URL to a decoded image.
type ImageLoader interface {
	Load(ctx context.Context, url string) (image.Image, error)
}

// ImageLoaderFunc adapts a function to ImageLoader.
type ImageLoaderFunc func(ctx context.Context, url string) (image.Image, error)

// Load calls f.
func (f ImageLoaderFunc) Load(ctx context.Context, url string) (image.Image, error) {
	return f(ctx, url)
}

// Default HTTP loader settings.
const (
	defaultImageCacheBytes = 64 << 20
	defaultImageCacheTTL   = 30 * time.Minute
	defaultImageMaxBytes   = 16 << 20
	defaultImageTimeout    = 30 * time.Second
)

// ErrImageTooLarge is returned when a response body exceeds MaxBytes.
var ErrImageTooLarge = errors.New("pixelmap: image exceeds size limit")

// HTTPImageLoaderOptions configures an HTTPImageLoader. Zero values use
// defaults.
type HTTPImageLoaderOptions struct {
	Client     *http.Client
	CacheBytes int64
	CacheTTL   time.Duration
	MaxBytes   int64
}

// HTTPImageLoader fetches images over HTTP and keeps decoded results in a
// cost-bounded cache. PNG, JPEG, GIF and WebP are supported.
type HTTPImageLoader struct {
	client   *http.Client
	cache    *ristretto.Cache[string, image.Image]
	ttl      time.Duration
	maxBytes int64
}

// NewHTTPImageLoader creates a loader.
func NewHTTPImageLoader(opts HTTPImageLoaderOptions) (*HTTPImageLoader, error) {
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: defaultImageTimeout}
	}
	if opts.CacheBytes <= 0 {
		opts.CacheBytes = defaultImageCacheBytes
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultImageCacheTTL
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = defaultImageMaxBytes
	}
	cache, err := ristretto.NewCache[string, image.Image](&ristretto.Config[string, image.Image]{
		NumCounters: 10000,
		MaxCost:     opts.CacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("pixelmap: image cache: %w", err)
	}
	return &HTTPImageLoader{
		client:   opts.Client,
		cache:    cache,
		ttl:      opts.CacheTTL,
		maxBytes: opts.MaxBytes,
	}, nil
}

// Load returns the decoded image at url, from cache when possible.
func (l *HTTPImageLoader) Load(ctx context.Context, url string) (image.Image, error) {
	if img, ok := l.cache.Get(url); ok {
		return img, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("load image %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("load image %s: status %s", url, resp.Status)
	}

	body := io.LimitReader(resp.Body, l.maxBytes+1)
	counted := &countingReader{r: body}
	img, _, err := image.Decode(counted)
	if counted.n > l.maxBytes {
		return nil, fmt.Errorf("load image %s: %w", url, ErrImageTooLarge)
	}
	if err != nil {
		return nil, fmt.Errorf("decode image %s: %w", url, err)
	}

	b := img.Bounds()
	l.cache.SetWithTTL(url, img, int64(b.Dx()*b.Dy()*4), l.ttl)
	return img, nil
}

// Close releases the cache.
func (l *HTTPImageLoader) Close() {
	l.cache.Close()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// --- Async placement ---

// ImageRequest is an in-flight PlaceAreaImage call. The tile slot exists as
// soon as the request is made; its texture is filled in on the first scene
// update after the image loads.
type ImageRequest struct {
	URL   string
	Area  SelectionRect
	Layer string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	img    image.Image
	err    error
}

// Cancel abandons the request. The tile slot stays in place without a
// texture.
func (r *ImageRequest) Cancel() {
	r.cancel()
}

// Done is closed once the load finishes, fails or is cancelled.
func (r *ImageRequest) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the load finishes or ctx ends.
func (r *ImageRequest) Wait(ctx context.Context) (image.Image, error) {
	select {
	case <-r.done:
		return r.img, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// imageQueue runs loads on their own goroutines and hands finished requests
// back to the frame goroutine.
type imageQueue struct {
	loader  ImageLoader
	results chan *ImageRequest
	pending map[*ImageRequest]struct{}
}

const imageResultBuffer = 64

func newImageQueue(loader ImageLoader) imageQueue {
	return imageQueue{
		loader:  loader,
		results: make(chan *ImageRequest, imageResultBuffer),
		pending: make(map[*ImageRequest]struct{}),
	}
}

func (q *imageQueue) start(ctx context.Context, r *ImageRequest) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.done = make(chan struct{})
	q.pending[r] = struct{}{}
	loader := q.loader
	results := q.results
	go func() {
		img, err := loader.Load(r.ctx, r.URL)
		if err == nil && r.ctx.Err() != nil {
			err = r.ctx.Err()
		}
		r.img, r.err = img, err
		close(r.done)
		select {
		case results <- r:
		case <-r.ctx.Done():
		}
	}()
}

// drain applies every finished request without blocking.
func (q *imageQueue) drain(s *GridScene) {
	for {
		select {
		case r := <-q.results:
			q.finish(s, r)
		default:
			return
		}
	}
}

func (q *imageQueue) finish(s *GridScene, r *ImageRequest) {
	if _, ok := q.pending[r]; !ok {
		return
	}
	delete(q.pending, r)
	r.cancel()
	if r.err != nil {
		if !errors.Is(r.err, context.Canceled) {
			s.logImageFailure(r.URL, r.Area, r.err)
		}
		return
	}
	n := s.placeAreaTexture(r.Area, ebiten.NewImageFromImage(r.img), r.Layer)
	n.SetVisible(true)
	n.SetAlpha(0)
	s.tweens = append(s.tweens, TweenAlpha(n, 1, imageFadeDuration, ease.OutQuad))
}

// cancelAll cancels every pending request; late results are dropped.
func (q *imageQueue) cancelAll() {
	for r := range q.pending {
		r.cancel()
	}
	clear(q.pending)
}

// Pending returns the number of area images still loading.
func (s *GridScene) Pending() int {
	return len(s.images.pending)
}

// PlaceAreaImage loads url in the background and stretches it over the
// cells of area. The anchor tile is reserved immediately, hidden until the
// image arrives. An empty layer name uses DefaultImageLayer. Cancelling ctx
// or destroying the scene abandons the load.
func (s *GridScene) PlaceAreaImage(ctx context.Context, area SelectionRect, url string, layerName string) *ImageRequest {
	s.mustBeLive("PlaceAreaImage")
	if layerName == "" {
		layerName = DefaultImageLayer
	}
	if s.images.loader == nil {
		l, err := NewHTTPImageLoader(HTTPImageLoaderOptions{})
		if err != nil {
			panic(err)
		}
		s.images.loader = l
	}

	slot := s.PlaceSolidTile(area.X, area.Y, layerName)
	if slot.Image() == nil {
		slot.SetVisible(false)
	}

	r := &ImageRequest{URL: url, Area: area, Layer: layerName}
	s.images.start(ctx, r)
	return r
}
