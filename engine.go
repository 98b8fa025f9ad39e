package pixelmap

import (
	"context"
	"fmt"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/sirupsen/logrus"
)

// EngineOptions configures an Engine.
type EngineOptions struct {
	// CanvasX and CanvasY offset the canvas inside the window.
	CanvasX, CanvasY int
	// Width and Height are the canvas size in screen pixels.
	Width, Height int
	// Background fills the window behind the canvas. Zero uses TintBackdrop.
	Background Color
	// Logger overrides the package logger.
	Logger logrus.FieldLogger
	// ShowDebug draws FPS and the hovered cell over the canvas.
	ShowDebug bool
	// Input replaces the Ebitengine mouse, touch and keyboard reader.
	Input InputSource
	// OnKeyDown is called once for each key press, before the active scene
	// updates.
	OnKeyDown func(key ebiten.Key)
}

// Engine owns the render surface and the registered scenes, and runs the
// frame loop as an ebiten.Game. At most one scene is active.
type Engine struct {
	opts EngineOptions
	log  logrus.FieldLogger

	scenes    []Scene
	active    int
	destroyed bool

	input   InputSource
	frame   InputFrame
	pointer pointerState
	pinch   pinchState
	keys    map[ebiten.Key]bool

	injectQueue []syntheticEvent
	testRunner  *TestRunner

	screenshotQueue []string
	// ScreenshotDir is where Screenshot writes PNG files.
	ScreenshotDir string
}

// NewEngine creates an engine with no scenes.
func NewEngine(opts EngineOptions) *Engine {
	if opts.Width <= 0 || opts.Height <= 0 {
		panic(fmt.Sprintf("pixelmap: invalid canvas size %dx%d", opts.Width, opts.Height))
	}
	if opts.Background == (Color{}) {
		opts.Background = TintBackdrop
	}
	e := &Engine{
		opts:          opts,
		log:           opts.Logger,
		active:        -1,
		input:         opts.Input,
		keys:          make(map[ebiten.Key]bool),
		ScreenshotDir: "screenshots",
	}
	if e.log == nil {
		e.log = logger
	}
	if e.input == nil {
		e.input = &ebitenInput{}
	}
	return e
}

func (e *Engine) mustBeAlive(op string) {
	if e.destroyed {
		panic(fmt.Sprintf("pixelmap: %s after Engine.Destroy", op))
	}
}

// AddScene registers s, runs its OnInit and returns its index.
func (e *Engine) AddScene(s Scene) int {
	e.mustBeAlive("AddScene")
	e.scenes = append(e.scenes, s)
	s.OnInit()
	e.log.WithField("index", len(e.scenes)-1).Debug("scene added")
	return len(e.scenes) - 1
}

// ChangeScene makes scene i active, closing the previous one. It does
// nothing if i is already active.
func (e *Engine) ChangeScene(i int) {
	e.mustBeAlive("ChangeScene")
	if i < 0 || i >= len(e.scenes) {
		panic(fmt.Sprintf("pixelmap: scene index %d out of range [0, %d)", i, len(e.scenes)))
	}
	if i == e.active {
		return
	}
	if prev := e.ActiveScene(); prev != nil {
		prev.OnClose()
	}
	e.active = i
	e.scenes[i].OnOpen()
	e.log.WithField("index", i).Debug("scene changed")
}

// ActiveScene returns the active scene, or nil.
func (e *Engine) ActiveScene() Scene {
	if e.active < 0 || e.active >= len(e.scenes) {
		return nil
	}
	return e.scenes[e.active]
}

// ActiveIndex returns the index of the active scene, or -1.
func (e *Engine) ActiveIndex() int {
	return e.active
}

// NumScenes returns the number of registered scenes.
func (e *Engine) NumScenes() int {
	return len(e.scenes)
}

// KeyPressed reports whether key is held.
func (e *Engine) KeyPressed(key ebiten.Key) bool {
	return e.keys[key]
}

// SetTestRunner attaches a TestRunner. Its step runs at the start of every
// Update, before input is processed.
func (e *Engine) SetTestRunner(r *TestRunner) {
	e.testRunner = r
}

// Update implements ebiten.Game. It processes one frame of input and
// updates the active scene. After Destroy it stops the loop.
func (e *Engine) Update() error {
	if e.destroyed {
		return ebiten.Termination
	}
	if e.testRunner != nil {
		e.testRunner.step(e)
	}
	if !e.processInjectedInput() {
		e.frame.reset()
		e.input.Poll(&e.frame)
		e.processFrame(&e.frame)
	}
	if s := e.ActiveScene(); s != nil {
		s.OnUpdate()
	}
	return nil
}

// Draw implements ebiten.Game. It fills the background, presents the active
// scene's frame at the canvas offset and captures queued screenshots.
func (e *Engine) Draw(screen *ebiten.Image) {
	if e.destroyed {
		return
	}
	screen.Fill(e.opts.Background.toRGBA())
	if fs, ok := e.ActiveScene().(frameSource); ok {
		if frame := fs.Frame(); frame != nil {
			var op ebiten.DrawImageOptions
			op.GeoM.Translate(float64(e.opts.CanvasX), float64(e.opts.CanvasY))
			screen.DrawImage(frame, &op)
		}
	}
	if e.opts.ShowDebug {
		e.drawDebugOverlay(screen)
	}
	e.flushScreenshots(screen)
}

// Layout implements ebiten.Game.
func (e *Engine) Layout(_, _ int) (int, int) {
	return e.opts.CanvasX + e.opts.Width, e.opts.CanvasY + e.opts.Height
}

// Destroy destroys every scene and stops the frame loop. Any later call
// that changes the engine panics.
func (e *Engine) Destroy() {
	e.mustBeAlive("Destroy")
	for _, s := range e.scenes {
		s.Destroy()
	}
	e.scenes = nil
	e.active = -1
	e.injectQueue = nil
	e.destroyed = true
	e.log.Debug("engine destroyed")
}

// Destroyed reports whether Destroy has run.
func (e *Engine) Destroyed() bool {
	return e.destroyed
}

// Run opens a window sized to the canvas and runs the frame loop until the
// window closes or Destroy is called.
func (e *Engine) Run(title string) error {
	e.mustBeAlive("Run")
	w, h := e.Layout(0, 0)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle(title)
	if err := ebiten.RunGame(e); err != nil {
		return fmt.Errorf("pixelmap: run: %w", err)
	}
	return nil
}

// RunContext is Run, but also destroys the engine and returns once ctx
// ends.
func (e *Engine) RunContext(ctx context.Context, title string) error {
	e.mustBeAlive("RunContext")
	w, h := e.Layout(0, 0)
	ebiten.SetWindowSize(w, h)
	ebiten.SetWindowTitle(title)
	if err := ebiten.RunGame(contextGame{e, ctx}); err != nil {
		return fmt.Errorf("pixelmap: run: %w", err)
	}
	return nil
}

// contextGame stops the engine's frame loop when ctx ends.
type contextGame struct {
	*Engine
	ctx context.Context
}

func (g contextGame) Update() error {
	if g.ctx.Err() != nil && !g.destroyed {
		g.Destroy()
	}
	return g.Engine.Update()
}
