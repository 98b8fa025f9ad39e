// Package pixelmap is a zoomable, pannable grid engine for [Ebitengine],
// built for pixel-ownership maps where cells are selected, tinted and
// covered with images.
//
// # Quick start
//
// An [Engine] owns the window and the frame loop. A [GridScene] draws a grid
// of cells, turns drags into selection rectangles and keeps tiles on named
// layers:
//
//	engine := pixelmap.NewEngine(pixelmap.EngineOptions{Width: 800, Height: 800})
//	scene := pixelmap.NewGridScene(engine, pixelmap.SceneOptions{
//		PixelSize: 8, GridWidth: 100, GridHeight: 100,
//		ViewWidth: 800, ViewHeight: 800,
//		OnSelectEnd: func(r pixelmap.SelectionRect) { log.Println(r) },
//	})
//	engine.ChangeScene(scene.Index())
//	engine.Run("pixelmap")
//
// # Tiles and layers
//
// Every placement primitive is idempotent per layer and cell: placing twice
// returns the same [Node]. Layers are created on first use and draw in
// creation order.
//
//	scene.SetTile(3, 4, pixelmap.Hex(0xdce090), 0.4, "mint")
//	scene.PlaceTextTile(3, 4, "7", "label")
//	scene.PlaceAreaImage(ctx, pixelmap.SelectionRect{X: 3, Y: 4, Width: 2, Height: 2}, url, "")
//
// Area images load on a background goroutine and are applied on the next
// frame. Cancelling the request or destroying the scene drops the result.
//
// # Heatmaps
//
// [GridScene.ApplyHeatmap] shades cells by count. The normalization constant
// is passed in explicitly, usually from [HeatmapMax].
//
// # Cell ids
//
// Grid cells map to world cells of an unbounded square spiral through the
// spatial subpackage.
//
// [Ebitengine]: https://ebitengine.org
package pixelmap
