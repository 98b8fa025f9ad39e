package pixelmap

// DefaultHeatmapHeadroom is added to the densest count so that cell never
// reaches full intensity.
const DefaultHeatmapHeadroom = 12

// DefaultHeatmapScale caps heatmap opacity below 1 so tiles underneath stay
// visible.
const DefaultHeatmapScale = 0.8

// DefaultHeatmapLayer is the layer ApplyHeatmap draws on when the policy
// names none.
const DefaultHeatmapLayer = "pick"

// HeatmapMax returns the normalization constant for counts: the largest
// count plus headroom.
func HeatmapMax(counts []int, headroom int) int {
	m := 0
	for _, c := range counts {
		m = max(m, c)
	}
	return m + headroom
}

// HeatAlpha returns the opacity for count under the normalization constant
// maxCount. Counts above maxCount are capped.
func HeatAlpha(count, maxCount int, scale float64) float64 {
	if maxCount <= 0 || count <= 0 {
		return 0
	}
	return float64(min(count, maxCount)) / float64(maxCount) * scale
}

// HeatCell is one cell of a heatmap in grid coordinates.
type HeatCell struct {
	X, Y  int
	Count int
	Owned bool
}

// HeatmapPolicy controls how ApplyHeatmap tints cells. Max must be computed
// by the caller, usually with HeatmapMax, on every refresh.
type HeatmapPolicy struct {
	Max       int
	Scale     float64
	OwnedTint Color
	OtherTint Color
	Layer     string
}

// DefaultHeatmapPolicy returns a policy for maxCount with the default scale,
// green for owned cells, red for the rest, on the "pick" layer.
func DefaultHeatmapPolicy(maxCount int) HeatmapPolicy {
	return HeatmapPolicy{
		Max:       maxCount,
		Scale:     DefaultHeatmapScale,
		OwnedTint: TintOwned,
		OtherTint: TintOther,
		Layer:     DefaultHeatmapLayer,
	}
}

// ApplyHeatmap sets one tile per cell with the cell's ownership tint and
// count-scaled opacity. Cells outside the grid and cells with no count are
// skipped.
func (s *GridScene) ApplyHeatmap(cells []HeatCell, p HeatmapPolicy) {
	s.mustBeLive("ApplyHeatmap")
	if p.Scale == 0 {
		p.Scale = DefaultHeatmapScale
	}
	if p.Layer == "" {
		p.Layer = DefaultHeatmapLayer
	}
	for _, c := range cells {
		if !s.InGrid(c.X, c.Y) {
			continue
		}
		alpha := HeatAlpha(c.Count, p.Max, p.Scale)
		if alpha == 0 {
			continue
		}
		tint := p.OtherTint
		if c.Owned {
			tint = p.OwnedTint
		}
		s.SetTile(c.X, c.Y, tint, alpha, p.Layer)
	}
}
