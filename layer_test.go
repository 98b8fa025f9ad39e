package pixelmap

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestLayersCreatedOnFirstUse(t *testing.T) {
	s := newTestScene(t, testOptions())
	s.PlaceSolidTile(0, 0, "mint")
	s.PlaceTextTile(0, 0, "1", "label")
	s.SetTile(1, 1, TintOwned, 0.5, "pick")
	s.PlaceSolidTile(2, 2, "mint")

	want := []string{"mint", "label", "pick"}
	if diff := cmp.Diff(want, s.LayerNames()); diff != "" {
		t.Errorf("LayerNames() mismatch (-want +got):\n%v", diff)
	}
}

func TestLayerReturnsSameContainer(t *testing.T) {
	s := newTestScene(t, testOptions())
	a := s.Layer("mint")
	b := s.Layer("mint")
	if a != b {
		t.Error("Layer should return the same container for the same name")
	}
	if a.Type != NodeTypeContainer {
		t.Errorf("layer Type = %v, want container", a.Type)
	}
}

func TestPlaceSolidTileIdempotent(t *testing.T) {
	s := newTestScene(t, testOptions())
	first := s.PlaceSolidTile(4, 5, "mint")
	second := s.PlaceSolidTile(4, 5, "mint")
	if first != second {
		t.Fatal("placing twice on the same cell should return the same tile")
	}
	if got := s.TileCount("mint"); got != 1 {
		t.Errorf("TileCount = %d, want 1", got)
	}

	// Mutations through either reference are the same tile.
	second.SetTint(Hex(0x123456))
	if first.Tint() != 0x123456 {
		t.Errorf("first.Tint() = %#06x, want 0x123456", first.Tint())
	}
}

func TestPlaceSolidTileGeometry(t *testing.T) {
	s := newTestScene(t, testOptions())
	n := s.PlaceSolidTile(4, 5, "mint")
	if n.X != 32 || n.Y != 40 {
		t.Errorf("position = (%v, %v), want (32, 40)", n.X, n.Y)
	}
	if n.Width != 8 || n.Height != 8 {
		t.Errorf("size = %vx%v, want 8x8", n.Width, n.Height)
	}
	if n.Tint() != 0xffffff {
		t.Errorf("Tint() = %#06x, want white", n.Tint())
	}
}

func TestSameCellDifferentLayers(t *testing.T) {
	s := newTestScene(t, testOptions())
	a := s.PlaceSolidTile(1, 1, "mint")
	b := s.PlaceSolidTile(1, 1, "pick")
	if a == b {
		t.Error("different layers must hold different tiles")
	}
}

func TestTileLookup(t *testing.T) {
	s := newTestScene(t, testOptions())
	placed := s.PlaceSolidTile(3, 3, "mint")

	got, ok := s.Tile(3, 3, "mint")
	if !ok || got != placed {
		t.Errorf("Tile(3, 3) = %v, %v; want the placed tile", got, ok)
	}
	if _, ok := s.Tile(4, 3, "mint"); ok {
		t.Error("Tile on an empty cell should report false")
	}
	if _, ok := s.Tile(3, 3, "nope"); ok {
		t.Error("Tile on a missing layer should report false")
	}
}

func TestSetTile(t *testing.T) {
	s := newTestScene(t, testOptions())
	n := s.SetTile(2, 3, Hex(0xdce090), 0.4, "mint")
	if n.Tint() != 0xdce090 {
		t.Errorf("Tint() = %#06x, want 0xdce090", n.Tint())
	}
	assertNear(t, "Alpha", n.Alpha, 0.4)

	// Zero tint and alpha leave the current values alone.
	same := s.SetTile(2, 3, Color{}, 0, "mint")
	if same != n {
		t.Fatal("SetTile should reuse the tile")
	}
	if n.Tint() != 0xdce090 {
		t.Errorf("Tint() = %#06x after zero-tint SetTile", n.Tint())
	}
	assertNear(t, "Alpha", n.Alpha, 0.4)

	s.SetTile(2, 3, Hex(0xababab), 1, "mint")
	if n.Tint() != 0xababab {
		t.Errorf("Tint() = %#06x, want 0xababab", n.Tint())
	}
	assertNear(t, "Alpha", n.Alpha, 1)
}

func TestPlaceTextTileCentred(t *testing.T) {
	s := newTestScene(t, testOptions())
	n := s.PlaceTextTile(2, 3, "42", "label")
	if n.Type != NodeTypeText {
		t.Fatalf("Type = %v, want text", n.Type)
	}
	if n.TextBlock.Content != "42" {
		t.Errorf("Content = %q, want %q", n.TextBlock.Content, "42")
	}
	if n.TextBlock.Color != TintText {
		t.Errorf("text color = %v, want %v", n.TextBlock.Color, TintText)
	}
	assertNear(t, "X", n.X, 20)
	assertNear(t, "Y", n.Y, 28)

	w, h := n.TextBlock.layout()
	assertNear(t, "PivotX", n.PivotX, w/2)
	assertNear(t, "PivotY", n.PivotY, h/2)

	again := s.PlaceTextTile(2, 3, "other", "label")
	if again != n || n.TextBlock.Content != "42" {
		t.Error("PlaceTextTile should return the existing label unchanged")
	}
}

func TestPlaceAreaImageData(t *testing.T) {
	s := newTestScene(t, testOptions())
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	area := SelectionRect{X: 2, Y: 3, Width: 4, Height: 2}
	n := s.PlaceAreaImageData(area, img, "")

	if got, ok := s.Tile(2, 3, DefaultImageLayer); !ok || got != n {
		t.Fatal("area image should sit on the default image layer at its anchor")
	}
	if n.Image() == nil {
		t.Fatal("Image() = nil")
	}
	if n.Width != 32 || n.Height != 16 {
		t.Errorf("size = %vx%v, want 32x16", n.Width, n.Height)
	}
	assertNear(t, "X", n.X, 16)
	assertNear(t, "Y", n.Y, 24)
	if got := s.TileCount(DefaultImageLayer); got != 1 {
		t.Errorf("TileCount = %d, want 1 (one tile per area)", got)
	}
}

func TestSelectionStaysAboveNewLayers(t *testing.T) {
	s := newTestScene(t, testOptions())
	s.PlaceSolidTile(0, 0, "mint")
	s.OnSelect(0, 0, 10, 10)
	s.PlaceSolidTile(0, 0, "late")

	children := s.root.Children()
	if children[len(children)-1] != s.selection {
		t.Error("selection highlight should be the last root child")
	}
}
