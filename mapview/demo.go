package mapview

import (
	"context"

	"github.com/phanxgames/pixelmap"
	"github.com/phanxgames/pixelmap/spatial"
	"github.com/phanxgames/pixelmap/storage"
)

// DemoImage is an image shown over a demo area.
type DemoImage struct {
	Area pixelmap.SelectionRect
	Ref  string
}

// Demo is a fixed map used by the guide view, in grid coordinates.
type Demo struct {
	Minted []pixelmap.SelectionRect
	Picks  []pixelmap.SelectionRect
	Images []DemoImage
}

func rect(x, y, w, h int) pixelmap.SelectionRect {
	return pixelmap.SelectionRect{X: x, Y: y, Width: w, Height: h}
}

// DemoData returns the guide map.
func DemoData() Demo {
	return Demo{
		Minted: []pixelmap.SelectionRect{
			rect(16, 5, 3, 3),
			rect(9, 12, 2, 2),
			rect(13, 18, 4, 3),
			rect(15, 11, 1, 1),
			rect(20, 14, 3, 1),
			rect(23, 4, 1, 1),
			rect(18, 15, 1, 1),
			rect(9, 21, 1, 1),
			rect(23, 19, 2, 2),
		},
		Picks: []pixelmap.SelectionRect{
			rect(11, 11, 2, 2),
			rect(12, 12, 2, 4),
			rect(13, 9, 5, 4),
			rect(13, 12, 3, 2),
			rect(17, 8, 5, 3),
			rect(20, 10, 4, 4),
			rect(6, 9, 4, 2),
			rect(11, 12, 3, 3),
			rect(17, 6, 4, 3),
			rect(13, 20, 4, 2),
			rect(16, 8, 3, 1),
			rect(5, 16, 2, 2),
			rect(26, 13, 1, 1),
			rect(14, 24, 1, 1),
			rect(23, 20, 1, 2),
			rect(8, 17, 2, 1),
			rect(16, 16, 1, 2),
			rect(13, 13, 2, 2),
			rect(14, 14, 2, 1),
		},
		Images: []DemoImage{
			{rect(12, 10, 2, 2), "QmV5axZaxkBfm743jDPgszNsfXsKPHBszFqEL6KTFbipJo"},
			{rect(14, 14, 4, 3), "QmQ3iun73Vyb4XykRrvHavXRHqeHskWtKBEX4hmRuEEMg2"},
			{rect(18, 10, 6, 3), "QmdjxRmV4Pcv46AFU3ZCVM4UR65YqtLiBdaSJ6HdLkZu7N"},
			{rect(9, 16, 3, 3), "QmaGokGqgjknfa4xnXKnnwC5ZyXzUjQ7p6KEe4D8G5uFFE"},
			{rect(20, 15, 3, 3), "Qme7uLEoDejM4nRARcm9JogrVsmwwbHM1BzxsyHjbPmowT"},
			{rect(10, 5, 6, 3), "QmVQ7m15djg4U5Ef3PRkkmXidBwx4tAd6SehsNKkR6xLzK"},
			{rect(17, 19, 3, 3), "QmPmTdsH6HXgTGb3sVue8GYuRyZa4XoFhnxZTrNoXnaXqB"},
		},
	}
}

// PickCounts returns the number of pick areas covering each cell, with the
// demo shifted by move cells on both axes.
func (d Demo) PickCounts(move int) map[[2]int]int {
	counts := make(map[[2]int]int)
	for _, r := range d.Picks {
		for x, y := range spatial.Cells(r) {
			counts[[2]int{x + move, y + move}]++
		}
	}
	return counts
}

// Reflect draws the demo on s shifted by move cells. Minted cells are drawn
// as owned by someone else. Pick opacity uses the fixed
// DefaultHeatmapHeadroom as its normalization constant.
func (d Demo) Reflect(ctx context.Context, s Scene, gateway string, move int) []*pixelmap.ImageRequest {
	for _, r := range d.Minted {
		for x, y := range spatial.Cells(r) {
			s.SetTile(x+move, y+move, TintMintOther, MintAlpha, LayerMint)
		}
	}

	reqs := make([]*pixelmap.ImageRequest, 0, len(d.Images))
	for _, img := range d.Images {
		area := img.Area
		area.X += move
		area.Y += move
		reqs = append(reqs, s.PlaceAreaImage(ctx, area, storage.GatewayURL(gateway, img.Ref), LayerImage))
	}

	counts := d.PickCounts(move)
	cells := make([]pixelmap.HeatCell, 0, len(counts))
	for xy, n := range counts {
		cells = append(cells, pixelmap.HeatCell{X: xy[0], Y: xy[1], Count: n})
	}
	s.ApplyHeatmap(cells, pixelmap.DefaultHeatmapPolicy(pixelmap.DefaultHeatmapHeadroom))
	return reqs
}
