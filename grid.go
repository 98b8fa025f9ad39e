package pixelmap

import "math"

// gridLines draws the cell boundaries behind every layer. Lines are placed at
// world positions but drawn one screen pixel wide at any zoom.
type gridLines struct {
	cols, rows int
	cell       float64
	tint       Color
}

func newGridLines(cols, rows int, cell float64) gridLines {
	tint := TintGridLine
	tint.A = gridLineAlpha
	return gridLines{cols: cols, rows: rows, cell: cell, tint: tint}
}

// appendCommands emits one command per visible line.
func (g gridLines) appendCommands(cmds []renderCommand, cam *Camera) []renderCommand {
	if g.cols == 0 || g.rows == 0 {
		return cmds
	}
	vis := cam.VisibleBounds()

	// Line extents in screen space, clipped to the world.
	_, top := cam.WorldToScreen(0, 0)
	_, bottom := cam.WorldToScreen(0, float64(g.rows)*g.cell)
	left, _ := cam.WorldToScreen(0, 0)
	right, _ := cam.WorldToScreen(float64(g.cols)*g.cell, 0)
	top = math.Max(top, 0)
	bottom = math.Min(bottom, cam.ScreenHeight)
	left = math.Max(left, 0)
	right = math.Min(right, cam.ScreenWidth)

	first := max(0, int(math.Floor(vis.X/g.cell)))
	last := min(g.cols, int(math.Ceil((vis.X+vis.Width)/g.cell)))
	for i := first; i <= last; i++ {
		sx, _ := cam.WorldToScreen(float64(i)*g.cell, 0)
		cmds = append(cmds, renderCommand{
			image:     WhitePixel,
			transform: [6]float64{1, 0, 0, bottom - top, math.Floor(sx), top},
			color:     g.tint,
		})
	}

	first = max(0, int(math.Floor(vis.Y/g.cell)))
	last = min(g.rows, int(math.Ceil((vis.Y+vis.Height)/g.cell)))
	for j := first; j <= last; j++ {
		_, sy := cam.WorldToScreen(0, float64(j)*g.cell)
		cmds = append(cmds, renderCommand{
			image:     WhitePixel,
			transform: [6]float64{right - left, 0, 0, 1, left, math.Floor(sy)},
			color:     g.tint,
		})
	}
	return cmds
}

// lineCount returns how many lines the full grid has.
func (g gridLines) lineCount() int {
	if g.cols == 0 || g.rows == 0 {
		return 0
	}
	return g.cols + 1 + g.rows + 1
}
