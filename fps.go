package pixelmap

import (
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
)

// hoverSource is implemented by scenes that track the hovered cell.
type hoverSource interface {
	Hovered() (x, y int)
}

// drawDebugOverlay prints FPS, TPS and the hovered cell at the canvas
// top-left.
func (e *Engine) drawDebugOverlay(screen *ebiten.Image) {
	msg := fmt.Sprintf("FPS: %.1f\nTPS: %.1f", ebiten.ActualFPS(), ebiten.ActualTPS())
	if hs, ok := e.ActiveScene().(hoverSource); ok {
		x, y := hs.Hovered()
		msg += fmt.Sprintf("\ncell: %d,%d", x, y)
	}
	ebitenutil.DebugPrintAt(screen, msg, e.opts.CanvasX+4, e.opts.CanvasY+4)
}
