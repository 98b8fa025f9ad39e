package pixelmap

import (
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// DefaultMaxScale caps how far a scene can zoom in.
const DefaultMaxScale = 32.0

// scrollAnim holds active scroll-to tweens for the camera centre.
type scrollAnim struct {
	tweenX *gween.Tween
	tweenY *gween.Tween
	doneX  bool
	doneY  bool
}

// zoomAnim holds an active zoom tween anchored at a screen point.
type zoomAnim struct {
	tween            *gween.Tween
	anchorX, anchorY float64
}

// Camera is the view into a fixed-size world: a pan offset and a zoom scale.
// Left and Top are the world-pixel coordinates shown at the screen's
// top-left corner.
type Camera struct {
	Left, Top float64
	// Scale is screen pixels per world pixel (1.0 = no zoom, >1 = zoom in).
	Scale float64

	ScreenWidth, ScreenHeight float64
	WorldWidth, WorldHeight   float64

	// MinScale and MaxScale bound Scale. The effective minimum is never
	// below the scale at which the whole world fits the screen.
	MinScale, MaxScale float64

	viewMatrix [6]float64
	dirty      bool

	scrollTween *scrollAnim
	zoomTween   *zoomAnim
}

// newCamera creates a Camera at scale 1 showing the top-left of the world.
func newCamera(screenW, screenH, worldW, worldH float64) *Camera {
	return &Camera{
		Scale:        1,
		ScreenWidth:  screenW,
		ScreenHeight: screenH,
		WorldWidth:   worldW,
		WorldHeight:  worldH,
		MaxScale:     DefaultMaxScale,
		dirty:        true,
	}
}

// VisibleWidth returns the width of the visible area in world pixels.
func (c *Camera) VisibleWidth() float64 {
	return c.ScreenWidth / c.Scale
}

// VisibleHeight returns the height of the visible area in world pixels.
func (c *Camera) VisibleHeight() float64 {
	return c.ScreenHeight / c.Scale
}

// VisibleBounds returns the visible area in world pixels.
func (c *Camera) VisibleBounds() Rect {
	return Rect{X: c.Left, Y: c.Top, Width: c.VisibleWidth(), Height: c.VisibleHeight()}
}

// effectiveMinScale returns the lowest allowed scale.
func (c *Camera) effectiveMinScale() float64 {
	fit := 0.0
	if c.WorldWidth > 0 && c.WorldHeight > 0 {
		fit = math.Min(c.ScreenWidth/c.WorldWidth, c.ScreenHeight/c.WorldHeight)
	}
	return math.Max(c.MinScale, fit)
}

// ClampZoom restricts Scale to [MinScale, MaxScale].
func (c *Camera) ClampZoom() {
	lo := c.effectiveMinScale()
	hi := c.MaxScale
	if hi <= 0 {
		hi = DefaultMaxScale
	}
	hi = math.Max(hi, lo)
	s := math.Max(lo, math.Min(c.Scale, hi))
	if s != c.Scale {
		c.Scale = s
		c.dirty = true
	}
}

// Clamp restricts the pan offset so the visible area stays within the world.
// When the world is smaller than the screen along an axis, it is centred.
func (c *Camera) Clamp() {
	left := clampAxis(c.Left, c.VisibleWidth(), c.WorldWidth)
	top := clampAxis(c.Top, c.VisibleHeight(), c.WorldHeight)
	if left != c.Left || top != c.Top {
		c.Left, c.Top = left, top
		c.dirty = true
	}
}

func clampAxis(pos, visible, world float64) float64 {
	if visible >= world {
		return (world - visible) / 2
	}
	return math.Max(0, math.Min(pos, world-visible))
}

// MoveCenter pans so the world point (x, y) is at the centre of the screen.
func (c *Camera) MoveCenter(x, y float64) {
	c.Left = x - c.VisibleWidth()/2
	c.Top = y - c.VisibleHeight()/2
	c.dirty = true
	c.Clamp()
}

// Center returns the world point at the centre of the screen.
func (c *Camera) Center() (x, y float64) {
	return c.Left + c.VisibleWidth()/2, c.Top + c.VisibleHeight()/2
}

// ZoomAt multiplies Scale by factor, keeping the world point under the
// screen point (sx, sy) fixed, then clamps zoom and pan.
func (c *Camera) ZoomAt(sx, sy, factor float64) {
	if factor <= 0 {
		return
	}
	c.setScaleAt(sx, sy, c.Scale*factor)
}

func (c *Camera) setScaleAt(sx, sy, scale float64) {
	wx, wy := c.ScreenToWorld(sx, sy)
	c.Scale = scale
	c.ClampZoom()
	c.Left = wx - sx/c.Scale
	c.Top = wy - sy/c.Scale
	c.dirty = true
	c.Clamp()
}

// --- Keyboard panning ---

// PanUp moves the view up by speed screen pixels, stopping at the world edge.
func (c *Camera) PanUp(speed float64) {
	c.Top -= math.Max(math.Min(speed/c.Scale, c.Top), 0)
	c.dirty = true
}

// PanDown moves the view down by speed screen pixels, stopping at the world edge.
func (c *Camera) PanDown(speed float64) {
	maxStep := c.WorldHeight - c.VisibleHeight() - c.Top
	c.Top += math.Max(math.Min(speed/c.Scale, maxStep), 0)
	c.dirty = true
}

// PanLeft moves the view left by speed screen pixels, stopping at the world edge.
func (c *Camera) PanLeft(speed float64) {
	c.Left -= math.Max(math.Min(speed/c.Scale, c.Left), 0)
	c.dirty = true
}

// PanRight moves the view right by speed screen pixels, stopping at the world edge.
func (c *Camera) PanRight(speed float64) {
	maxStep := c.WorldWidth - c.VisibleWidth() - c.Left
	c.Left += math.Max(math.Min(speed/c.Scale, maxStep), 0)
	c.dirty = true
}

// --- Animation ---

// ScrollTo animates the camera centre to the given world position over
// duration seconds.
func (c *Camera) ScrollTo(x, y float64, duration float32, easeFn ease.TweenFunc) {
	cx, cy := c.Center()
	c.scrollTween = &scrollAnim{
		tweenX: gween.New(float32(cx), float32(x), duration, easeFn),
		tweenY: gween.New(float32(cy), float32(y), duration, easeFn),
	}
}

// ZoomTo animates Scale to the given value over duration seconds, keeping
// the screen centre fixed.
func (c *Camera) ZoomTo(scale float64, duration float32, easeFn ease.TweenFunc) {
	c.zoomTween = &zoomAnim{
		tween:   gween.New(float32(c.Scale), float32(scale), duration, easeFn),
		anchorX: c.ScreenWidth / 2,
		anchorY: c.ScreenHeight / 2,
	}
}

// Animating reports whether a scroll or zoom tween is in progress.
func (c *Camera) Animating() bool {
	return c.scrollTween != nil || c.zoomTween != nil
}

// update advances tweens. Returns true if the view changed.
func (c *Camera) update(dt float32) bool {
	prevL, prevT, prevS := c.Left, c.Top, c.Scale

	if c.zoomTween != nil {
		val, done := c.zoomTween.tween.Update(dt)
		c.setScaleAt(c.zoomTween.anchorX, c.zoomTween.anchorY, float64(val))
		if done {
			c.zoomTween = nil
		}
	}

	if c.scrollTween != nil {
		cx, cy := c.Center()
		if !c.scrollTween.doneX {
			val, done := c.scrollTween.tweenX.Update(dt)
			cx = float64(val)
			c.scrollTween.doneX = done
		}
		if !c.scrollTween.doneY {
			val, done := c.scrollTween.tweenY.Update(dt)
			cy = float64(val)
			c.scrollTween.doneY = done
		}
		c.MoveCenter(cx, cy)
		if c.scrollTween.doneX && c.scrollTween.doneY {
			c.scrollTween = nil
		}
	}

	if c.Left != prevL || c.Top != prevT || c.Scale != prevS {
		c.dirty = true
		return true
	}
	return false
}

// computeViewMatrix recomputes the cached view matrix if dirty.
//
//	viewMatrix = Scale(s) * Translate(-Left, -Top)
func (c *Camera) computeViewMatrix() [6]float64 {
	if !c.dirty {
		return c.viewMatrix
	}
	c.dirty = false
	s := c.Scale
	c.viewMatrix = [6]float64{s, 0, 0, s, -c.Left * s, -c.Top * s}
	return c.viewMatrix
}

// WorldToScreen converts world coordinates to screen coordinates.
func (c *Camera) WorldToScreen(wx, wy float64) (sx, sy float64) {
	return (wx - c.Left) * c.Scale, (wy - c.Top) * c.Scale
}

// ScreenToWorld converts screen coordinates to world coordinates.
func (c *Camera) ScreenToWorld(sx, sy float64) (wx, wy float64) {
	return sx/c.Scale + c.Left, sy/c.Scale + c.Top
}

// MarkDirty forces a recomputation of the view matrix.
func (c *Camera) MarkDirty() {
	c.dirty = true
}

// --- Culling ---

// worldAABB computes the axis-aligned bounding box for a rectangle of size (w, h)
// transformed by the given affine matrix. Zero allocations.
func worldAABB(transform [6]float64, w, h float64) Rect {
	a, b, cc, d, tx, ty := transform[0], transform[2], transform[1], transform[3], transform[4], transform[5]

	// Transform four corners: (0,0), (w,0), (w,h), (0,h)
	x0, y0 := tx, ty
	x1, y1 := a*w+tx, cc*w+ty
	x2, y2 := a*w+b*h+tx, cc*w+d*h+ty
	x3, y3 := b*h+tx, d*h+ty

	minX := math.Min(math.Min(x0, x1), math.Min(x2, x3))
	minY := math.Min(math.Min(y0, y1), math.Min(y2, y3))
	maxX := math.Max(math.Max(x0, x1), math.Max(x2, x3))
	maxY := math.Max(math.Max(y0, y1), math.Max(y2, y3))

	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// nodeDimensions returns the local width and height used for AABB culling.
func nodeDimensions(n *Node) (w, h float64) {
	switch n.Type {
	case NodeTypeSprite:
		return n.Width, n.Height
	case NodeTypeText:
		if n.TextBlock != nil {
			return n.TextBlock.layout()
		}
		return 0, 0
	default:
		return 0, 0
	}
}

// shouldCull returns true if the node lies entirely outside cullBounds.
// Containers are never culled, and nodes of unknown size are kept.
func shouldCull(n *Node, cullBounds Rect) bool {
	if n.Type == NodeTypeContainer {
		return false
	}
	w, h := nodeDimensions(n)
	if w == 0 && h == 0 {
		return false
	}
	aabb := worldAABB(n.worldTransform, w, h)
	return !aabb.Intersects(cullBounds)
}
