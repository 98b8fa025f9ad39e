package pixelmap

import (
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// wheelZoomStep is the zoom factor applied per wheel notch.
const wheelZoomStep = 1.1

// InputFrame is one frame of raw input in window coordinates.
type InputFrame struct {
	CursorX, CursorY float64
	// Pressed reports whether the left mouse button is held.
	Pressed bool
	// WheelY is the vertical wheel delta; positive scrolls up.
	WheelY float64
	// Touches holds the positions of active touches.
	Touches []Vec2
	// KeysDown and KeysUp hold keys pressed or released this frame.
	KeysDown []ebiten.Key
	KeysUp   []ebiten.Key
}

func (f *InputFrame) reset() {
	f.CursorX, f.CursorY = 0, 0
	f.Pressed = false
	f.WheelY = 0
	f.Touches = f.Touches[:0]
	f.KeysDown = f.KeysDown[:0]
	f.KeysUp = f.KeysUp[:0]
}

// InputSource fills an InputFrame once per engine update.
type InputSource interface {
	Poll(f *InputFrame)
}

// ebitenInput reads the mouse, touch screen and keyboard through Ebitengine.
type ebitenInput struct {
	touchIDs []ebiten.TouchID
}

func (in *ebitenInput) Poll(f *InputFrame) {
	mx, my := ebiten.CursorPosition()
	f.CursorX, f.CursorY = float64(mx), float64(my)
	f.Pressed = ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)
	_, f.WheelY = ebiten.Wheel()

	in.touchIDs = ebiten.AppendTouchIDs(in.touchIDs[:0])
	for _, id := range in.touchIDs {
		tx, ty := ebiten.TouchPosition(id)
		f.Touches = append(f.Touches, Vec2{float64(tx), float64(ty)})
	}

	f.KeysDown = inpututil.AppendJustPressedKeys(f.KeysDown)
	f.KeysUp = inpututil.AppendJustReleasedKeys(f.KeysUp)
}

// --- Pointer state ---

// pointerState tracks the drag in canvas-local coordinates.
type pointerState struct {
	down         bool
	startX       float64
	startY       float64
	lastX, lastY float64
	moved        bool // lastX/lastY hold a real position
	touch        bool // the current press came from a touch
}

type pinchState struct {
	active   bool
	prevDist float64
}

// processFrame applies one frame of input to the engine state and the
// active scene.
func (e *Engine) processFrame(f *InputFrame) {
	for _, k := range f.KeysDown {
		e.keys[k] = true
		if e.opts.OnKeyDown != nil {
			e.opts.OnKeyDown(k)
		}
	}
	for _, k := range f.KeysUp {
		delete(e.keys, k)
	}

	scene := e.ActiveScene()
	if scene == nil {
		return
	}

	if len(f.Touches) >= 2 {
		e.detectPinch(scene, f.Touches[0], f.Touches[1])
		return
	}
	e.pinch.active = false

	x, y, pressed := f.CursorX, f.CursorY, f.Pressed
	switch {
	case len(f.Touches) == 1:
		x, y, pressed = f.Touches[0].X, f.Touches[0].Y, true
	case e.pointer.down && e.pointer.touch:
		// The finger lifted; release where it was last seen.
		x = e.pointer.lastX + float64(e.opts.CanvasX)
		y = e.pointer.lastY + float64(e.opts.CanvasY)
		pressed = false
	}
	e.processPointer(scene, x, y, pressed)
	e.pointer.touch = e.pointer.down && len(f.Touches) == 1

	if f.WheelY != 0 {
		cx, cy := e.toCanvas(x, y)
		if e.inCanvas(cx, cy) {
			scene.OnZoom(cx, cy, math.Pow(wheelZoomStep, f.WheelY))
		}
	}
}

// toCanvas converts window coordinates to canvas-local ones.
func (e *Engine) toCanvas(x, y float64) (float64, float64) {
	return x - float64(e.opts.CanvasX), y - float64(e.opts.CanvasY)
}

func (e *Engine) inCanvas(cx, cy float64) bool {
	return cx >= 0 && cy >= 0 && cx < float64(e.opts.Width) && cy < float64(e.opts.Height)
}

// processPointer runs the selection state machine for the single pointer.
// (x, y) are window coordinates.
func (e *Engine) processPointer(scene Scene, x, y float64, pressed bool) {
	ps := &e.pointer
	cx, cy := e.toCanvas(x, y)
	moved := !ps.moved || cx != ps.lastX || cy != ps.lastY

	switch {
	case pressed && !ps.down:
		// Presses outside the canvas never start a selection.
		if !e.inCanvas(cx, cy) {
			break
		}
		ps.down = true
		ps.startX, ps.startY = cx, cy
		scene.OnSelect(cx, cy, cx, cy)
	case pressed && ps.down:
		if moved {
			e.selectTo(scene, cx, cy)
		}
	case !pressed && ps.down:
		if moved {
			e.selectTo(scene, cx, cy)
		}
		ps.down = false
		scene.OnSelectEnd()
	default:
		if moved && e.inCanvas(cx, cy) {
			scene.OnMove(x, y, cx, cy)
		}
	}
	ps.lastX, ps.lastY = cx, cy
	ps.moved = true
}

// selectTo reports the rectangle between the anchor and (cx, cy), as its
// minimum and maximum screen corners.
func (e *Engine) selectTo(scene Scene, cx, cy float64) {
	ps := &e.pointer
	scene.OnSelect(
		math.Min(ps.startX, cx), math.Min(ps.startY, cy),
		math.Max(ps.startX, cx), math.Max(ps.startY, cy),
	)
}

// --- Pinch detection ---

// detectPinch turns two-finger movement into zoom around the midpoint. Any
// drag in progress is ended first.
func (e *Engine) detectPinch(scene Scene, p0, p1 Vec2) {
	if e.pointer.down {
		e.pointer.down = false
		scene.OnSelectEnd()
	}

	dx := p1.X - p0.X
	dy := p1.Y - p0.Y
	dist := math.Sqrt(dx*dx + dy*dy)
	cx, cy := e.toCanvas((p0.X+p1.X)/2, (p0.Y+p1.Y)/2)

	if !e.pinch.active {
		e.pinch.active = true
		e.pinch.prevDist = dist
		return
	}
	if e.pinch.prevDist > 0 && dist > 0 && dist != e.pinch.prevDist {
		scene.OnZoom(cx, cy, dist/e.pinch.prevDist)
	}
	e.pinch.prevDist = dist
}
