// Package mapview draws chain state onto a pixelmap.GridScene and turns
// selections into chain calls.
//
// The world is a WorldSize x WorldSize grid centred on the spiral origin: a
// pixel id maps to grid coordinates through MapXY, and a grid cell maps back
// to its id through CellID.
package mapview

import (
	"context"

	"github.com/phanxgames/pixelmap"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/phanxgames/pixelmap/spatial"
	"github.com/phanxgames/pixelmap/storage"
	"github.com/sirupsen/logrus"
)

// World geometry.
const (
	WorldSize = 100
	PixelSize = 8
	Offset    = WorldSize / 2
)

// Layer names, bottom to top in creation order.
const (
	LayerMint  = "mint"
	LayerPick  = pixelmap.DefaultHeatmapLayer
	LayerImage = pixelmap.DefaultImageLayer
)

// worldWindow is the world in spiral coordinates.
var worldWindow = spatial.Rect{X: -Offset, Y: -Offset, Width: WorldSize, Height: WorldSize}

// MintAlpha is the opacity of minted cells.
const MintAlpha = 0.4

var (
	TintMintOwned = pixelmap.Hex(0xdce090)
	TintMintOther = pixelmap.Hex(0xababab)
)

var logger logrus.FieldLogger = logrus.StandardLogger().WithField("component", "mapview")

// SetLogger replaces the package logger. A nil logger restores the default.
func SetLogger(l logrus.FieldLogger) {
	if l == nil {
		l = logrus.StandardLogger().WithField("component", "mapview")
	}
	logger = l
}

// Scene is the part of *pixelmap.GridScene the map draws on. All calls must
// come from the frame goroutine.
type Scene interface {
	SetTile(x, y int, tint pixelmap.Color, alpha float64, layerName string) *pixelmap.Node
	ApplyHeatmap(cells []pixelmap.HeatCell, p pixelmap.HeatmapPolicy)
	PlaceAreaImage(ctx context.Context, area pixelmap.SelectionRect, url string, layerName string) *pixelmap.ImageRequest
	Animate(g *pixelmap.TweenGroup)
	ClearSelect()
}

var _ Scene = (*pixelmap.GridScene)(nil)

// SceneOptions returns scene options for the full world at PixelSize on a
// view of the given size.
func SceneOptions(viewWidth, viewHeight int) pixelmap.SceneOptions {
	return pixelmap.SceneOptions{
		PixelSize:  PixelSize,
		GridWidth:  WorldSize,
		GridHeight: WorldSize,
		ViewWidth:  viewWidth,
		ViewHeight: viewHeight,
	}
}

// MapXY returns the grid cell of pixel id.
func MapXY(id uint64) (x, y int) {
	x, y = spatial.IDToCoord(id)
	return x + Offset, y + Offset
}

// CellID returns the pixel id of grid cell (x, y).
func CellID(x, y int) uint64 {
	return spatial.CoordToID(x-Offset, y-Offset)
}

// AreaRect returns the grid rectangle covered by a w x h area anchored at
// pixel id.
func AreaRect(id uint64, w, h int) pixelmap.SelectionRect {
	x, y := MapXY(id)
	return pixelmap.SelectionRect{X: x, Y: y, Width: w, Height: h}
}

// InWorld reports whether grid cell (x, y) lies inside the world.
func InWorld(x, y int) bool {
	return x >= 0 && y >= 0 && x < WorldSize && y < WorldSize
}

// ReflectMinted tints every minted pixel on the mint layer, highlighting the
// ones account owns.
func ReflectMinted(s Scene, pixels []chain.Pixel, account string) {
	for _, p := range pixels {
		x, y := MapXY(p.ID)
		if !InWorld(x, y) {
			continue
		}
		tint := TintMintOther
		if account != "" && p.Owner == account {
			tint = TintMintOwned
		}
		s.SetTile(x, y, tint, MintAlpha, LayerMint)
	}
}

// ReflectPicked draws the pick heatmap. Cells in accountPicks are drawn in the
// owned tint. The normalization constant is recomputed from picks on every
// call.
func ReflectPicked(s Scene, picks []chain.PickCount, accountPicks []uint64) {
	mine := make(map[uint64]bool, len(accountPicks))
	for _, id := range accountPicks {
		mine[id] = true
	}
	counts := make([]int, len(picks))
	cells := make([]pixelmap.HeatCell, len(picks))
	for i, p := range picks {
		x, y := MapXY(p.ID)
		counts[i] = p.Count
		cells[i] = pixelmap.HeatCell{X: x, Y: y, Count: p.Count, Owned: mine[p.ID]}
	}
	maxCount := pixelmap.HeatmapMax(counts, pixelmap.DefaultHeatmapHeadroom)
	s.ApplyHeatmap(cells, pixelmap.DefaultHeatmapPolicy(maxCount))
}

// ReflectImages starts loading every pixel image from gateway. An empty
// gateway uses storage.DefaultGateway. Pixels outside the world are skipped.
// Loads start along a Hilbert curve over the world, so neighbouring areas
// arrive close together.
func ReflectImages(ctx context.Context, s Scene, images []chain.PixelImage, gateway string) []*pixelmap.ImageRequest {
	byID := make(map[uint64]chain.PixelImage, len(images))
	ids := make([]uint64, 0, len(images))
	for _, img := range images {
		if _, dup := byID[img.ID]; !dup {
			ids = append(ids, img.ID)
		}
		byID[img.ID] = img
	}
	if ordered, err := spatial.HilbertOrder(ids, worldWindow); err == nil {
		ids = ordered
	}

	reqs := make([]*pixelmap.ImageRequest, 0, len(ids))
	for _, id := range ids {
		img := byID[id]
		area := AreaRect(img.ID, img.Width, img.Height)
		if !InWorld(area.X, area.Y) {
			logger.WithField("id", img.ID).Warn("image anchor outside the world")
			continue
		}
		reqs = append(reqs, s.PlaceAreaImage(ctx, area, storage.GatewayURL(gateway, img.ContentRef), LayerImage))
	}
	return reqs
}
