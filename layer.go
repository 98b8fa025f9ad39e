package pixelmap

import (
	"fmt"
	"image"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sirupsen/logrus"
)

// layer is a named container plus the registry of tiles placed on it.
type layer struct {
	name  string
	node  *Node
	tiles map[int]*Node
}

// Layer returns the container node of the named layer, creating the layer
// on first use. Layers draw in creation order.
func (s *GridScene) Layer(name string) *Node {
	s.mustBeLive("Layer")
	return s.layer(name).node
}

// LayerNames returns layer names in draw order.
func (s *GridScene) LayerNames() []string {
	names := make([]string, len(s.layers))
	for i, l := range s.layers {
		names[i] = l.name
	}
	return names
}

func (s *GridScene) layer(name string) *layer {
	if l, ok := s.layerByName[name]; ok {
		return l
	}
	l := &layer{
		name:  name,
		node:  NewContainer("layer:" + name),
		tiles: make(map[int]*Node),
	}
	// Keep the selection highlight above every layer.
	if s.selection != nil {
		s.root.RemoveChild(s.selection)
		s.root.AddChild(l.node)
		s.root.AddChild(s.selection)
	} else {
		s.root.AddChild(l.node)
	}
	s.layers = append(s.layers, l)
	s.layerByName[name] = l
	s.log.WithField("layer", name).Debug("add layer")
	return l
}

// Tile returns the tile at (x, y) on the named layer without placing one.
func (s *GridScene) Tile(x, y int, layerName string) (*Node, bool) {
	s.mustBeLive("Tile")
	l, ok := s.layerByName[layerName]
	if !ok {
		return nil, false
	}
	n, ok := l.tiles[s.CellIndex(x, y)]
	return n, ok
}

// TileCount returns the number of tiles on the named layer.
func (s *GridScene) TileCount(layerName string) int {
	if l, ok := s.layerByName[layerName]; ok {
		return len(l.tiles)
	}
	return 0
}

// addTile registers n at (x, y) on the layer unless a tile is already there,
// and returns whichever tile ends up registered.
func (s *GridScene) addTile(x, y int, layerName string, build func() *Node) *Node {
	l := s.layer(layerName)
	index := s.CellIndex(x, y)
	if existing, ok := l.tiles[index]; ok {
		return existing
	}
	n := build()
	l.tiles[index] = n
	l.node.AddChild(n)
	s.dirty = true
	return n
}

// --- Placement primitives ---

// PlaceSolidTile places a one-cell white tile at (x, y), or returns the tile
// already there. Set its tint and alpha through the returned node.
func (s *GridScene) PlaceSolidTile(x, y int, layerName string) *Node {
	s.mustBeLive("PlaceSolidTile")
	ps := float64(s.opts.PixelSize)
	return s.addTile(x, y, layerName, func() *Node {
		n := NewSprite(fmt.Sprintf("tile:%d,%d", x, y), nil, ps, ps)
		n.X, n.Y = float64(x)*ps, float64(y)*ps
		return n
	})
}

// PlaceTextTile places a text label centred on the cell (x, y), or returns
// the tile already there.
func (s *GridScene) PlaceTextTile(x, y int, content string, layerName string) *Node {
	s.mustBeLive("PlaceTextTile")
	ps := float64(s.opts.PixelSize)
	return s.addTile(x, y, layerName, func() *Node {
		if s.font == nil {
			s.font = DefaultFont(DefaultFontSize)
		}
		n := NewText(fmt.Sprintf("text:%d,%d", x, y), content, s.font)
		n.TextBlock.Color = TintText
		w, h := n.TextBlock.layout()
		n.PivotX, n.PivotY = w/2, h/2
		n.X, n.Y = (float64(x)+0.5)*ps, (float64(y)+0.5)*ps
		return n
	})
}

// SetTile places or reuses a solid tile and applies tint and alpha. A zero
// tint or alpha leaves that property unchanged.
func (s *GridScene) SetTile(x, y int, tint Color, alpha float64, layerName string) *Node {
	n := s.PlaceSolidTile(x, y, layerName)
	if tint != (Color{}) {
		n.SetTint(tint)
	}
	if alpha != 0 {
		n.SetAlpha(alpha)
	}
	s.dirty = true
	return n
}

// PlaceAreaImageData stretches img over the cells of area, anchored at the
// area's top-left cell. An empty layer name uses DefaultImageLayer.
func (s *GridScene) PlaceAreaImageData(area SelectionRect, img image.Image, layerName string) *Node {
	s.mustBeLive("PlaceAreaImageData")
	if layerName == "" {
		layerName = DefaultImageLayer
	}
	var tex *ebiten.Image
	if img != nil {
		if e, ok := img.(*ebiten.Image); ok {
			tex = e
		} else {
			tex = ebiten.NewImageFromImage(img)
		}
	}
	return s.placeAreaTexture(area, tex, layerName)
}

// placeAreaTexture resizes the anchor tile of area to cover the whole area
// and gives it the texture.
func (s *GridScene) placeAreaTexture(area SelectionRect, tex *ebiten.Image, layerName string) *Node {
	n := s.PlaceSolidTile(area.X, area.Y, layerName)
	ps := float64(s.opts.PixelSize)
	n.SetImage(tex)
	n.SetSize(float64(area.Width)*ps, float64(area.Height)*ps)
	n.SetTint(ColorWhite)
	n.SetAlpha(1)
	return n
}

// logImageFailure records a failed area image load.
func (s *GridScene) logImageFailure(url string, area SelectionRect, err error) {
	s.log.WithFields(logrus.Fields{
		"url":  url,
		"area": fmt.Sprintf("%d,%d %dx%d", area.X, area.Y, area.Width, area.Height),
	}).WithError(err).Warn("area image load failed")
}
