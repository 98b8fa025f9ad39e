package pixelmap

import (
	"testing"

	"github.com/tanema/gween/ease"
)

func TestTweenAlpha(t *testing.T) {
	n := NewSprite("tile", nil, 8, 8)
	g := TweenAlpha(n, 0, 1.0, ease.Linear)

	g.Update(0.5)
	if !approxEqual(n.Alpha, 0.5, 1e-6) {
		t.Errorf("Alpha = %v, want 0.5 mid-tween", n.Alpha)
	}
	if g.Done {
		t.Error("Done = true mid-tween")
	}

	g.Update(0.5)
	if !approxEqual(n.Alpha, 0, 1e-6) {
		t.Errorf("Alpha = %v, want 0", n.Alpha)
	}
	if !g.Done {
		t.Error("Done = false after duration")
	}
}

func TestTweenColor(t *testing.T) {
	n := NewSprite("tile", nil, 8, 8)
	n.Color = Color{0, 0, 0, 1}
	g := TweenColor(n, Color{1, 0.5, 0, 0.5}, 0.2, ease.Linear)

	for !g.Done {
		g.Update(0.05)
	}
	want := Color{1, 0.5, 0, 0.5}
	for i, pair := range [][2]float64{{n.Color.R, want.R}, {n.Color.G, want.G}, {n.Color.B, want.B}, {n.Color.A, want.A}} {
		if !approxEqual(pair[0], pair[1], 1e-6) {
			t.Errorf("component %d = %v, want %v", i, pair[0], pair[1])
		}
	}
}

func TestTweenMarksSceneDirty(t *testing.T) {
	var dirty bool
	n := NewSprite("tile", nil, 8, 8)
	n.dirty = &dirty

	TweenAlpha(n, 0.5, 1, ease.Linear).Update(0.1)
	if !dirty {
		t.Error("tween update should flag a redraw")
	}
}

func TestTweenStopsOnDisposedNode(t *testing.T) {
	n := NewSprite("tile", nil, 8, 8)
	g := TweenAlpha(n, 0, 1.0, ease.Linear)
	n.Dispose()

	g.Update(0.5)
	if !g.Done {
		t.Error("tween on a disposed node should stop")
	}
}

func TestSceneAnimateRunsUntilDone(t *testing.T) {
	s := newTestScene(t, testOptions())
	tile := s.PlaceSolidTile(1, 1, "mint")
	s.Animate(TweenColor(tile, Hex(0xababab), 0.05, ease.Linear))

	// 60 TPS: a 0.05s tween finishes within a handful of frames.
	for i := 0; i < 10; i++ {
		s.OnUpdate()
	}
	if len(s.tweens) != 0 {
		t.Errorf("%d tweens still running", len(s.tweens))
	}
	if tile.Tint() != 0xababab {
		t.Errorf("Tint() = %#06x, want 0xababab", tile.Tint())
	}
}

func TestSceneTweensPauseWhenClosed(t *testing.T) {
	s := newTestScene(t, testOptions())
	tile := s.PlaceSolidTile(1, 1, "mint")
	s.Animate(TweenAlpha(tile, 0, 1, ease.Linear))

	s.OnClose()
	s.OnUpdate()
	assertNear(t, "Alpha", tile.Alpha, 1)
}
