// Pixelmap shows the pixel map of one chain and lets the signed-in account
// act on it.
//
// Drag to select cells, then:
//   - M mints the selection
//   - P picks it
//   - G merges it into one area
//   - U uploads the file given by -image over it
//   - R reloads the map
//   - Esc clears the selection
//
// -script replays a JSON input script (click, drag, key, wheel, wait,
// screenshot) and quits when it ends. Screenshots go to -shots.
//
// Settings come from pixelmap.yaml, .env and PIXELMAP_ variables, see the
// config package.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/phanxgames/pixelmap"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/phanxgames/pixelmap/config"
	"github.com/phanxgames/pixelmap/mapview"
	"github.com/phanxgames/pixelmap/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	configFile := flag.String("config", "", "config file (default ./pixelmap.yaml if present)")
	imagePath := flag.String("image", "", "image file U uploads over the selection")
	demo := flag.Bool("demo", false, "show the guide map instead of chain state")
	script := flag.String("script", "", "JSON input script to replay")
	shots := flag.String("shots", "screenshots", "directory for script screenshots")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	useLogger(logger)

	err = run(cfg, logger, options{image: *imagePath, demo: *demo, script: *script, shots: *shots})
	closer.Close()
	if err != nil {
		logger.WithError(err).Error("pixelmap stopped")
		os.Exit(1)
	}
}

// options carries the command-line flags into run.
type options struct {
	image  string
	demo   bool
	script string
	shots  string
}

// app holds the running map.
type app struct {
	log   *logrus.Logger
	svc   chain.Service
	ctrl  *mapview.Controller
	image string
	busy  atomic.Bool
}

func run(cfg *config.Config, logger *logrus.Logger, o options) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runner *pixelmap.TestRunner
	if o.script != "" {
		data, err := os.ReadFile(o.script)
		if err != nil {
			return err
		}
		if runner, err = pixelmap.LoadTestScript(data); err != nil {
			return err
		}
	}

	platform, err := cfg.ChainPlatform()
	if err != nil {
		return err
	}
	store := storage.NewMemory(cfg.IPFS.MaxBytes)
	reg := newRegistry(cfg, store, logger)
	svc, err := reg.Service(ctx, platform)
	if err != nil {
		return err
	}
	a := &app{log: logger, svc: svc, image: o.image}
	a.signIn(ctx, platform)

	httpLoader, err := pixelmap.NewHTTPImageLoader(pixelmap.HTTPImageLoaderOptions{})
	if err != nil {
		return err
	}
	defer httpLoader.Close()

	var uploader storage.Uploader = storage.NewIPFS(storage.IPFSOptions{
		APIURL:   cfg.IPFS.API,
		Username: cfg.IPFS.Username,
		Password: cfg.IPFS.Password,
		Pin:      cfg.IPFS.Pin,
	})
	var loader pixelmap.ImageLoader = httpLoader
	gateway := cfg.IPFS.Gateway
	if platform == chain.InMemory {
		uploader, loader, gateway = store, memoryLoader(store, httpLoader), memoryGateway
	}

	engine := pixelmap.NewEngine(pixelmap.EngineOptions{
		Width:     cfg.Window.Width,
		Height:    cfg.Window.Height,
		ShowDebug: cfg.Window.Debug,
		Logger:    logger,
		OnKeyDown: func(key ebiten.Key) { a.onKey(ctx, key) },
	})
	if runner != nil {
		engine.ScreenshotDir = o.shots
		engine.SetTestRunner(runner)
	}

	var (
		scene    *pixelmap.GridScene
		demoOnce sync.Once
	)
	opts := mapview.SceneOptions(cfg.Window.Width, cfg.Window.Height)
	opts.ImageLoader = loader
	opts.Logger = logger.WithField("component", "scene")
	opts.OnSelectEnd = func(r pixelmap.SelectionRect) { a.ctrl.Select(r) }
	opts.OnMove = func(_, _ float64, x, y int) {
		if d := a.ctrl.Describe(x, y); d != "" {
			ebiten.SetWindowTitle(cfg.Window.Title + " | " + d)
		}
	}
	opts.OnCustomUpdate = func() {
		if runner != nil && runner.Done() && engine.PendingInput() == 0 {
			stop()
		}
		if o.demo {
			demoOnce.Do(func() { mapview.DemoData().Reflect(ctx, scene, gateway, 0) })
		}
		a.ctrl.Update()
	}
	scene = pixelmap.NewGridScene(engine, opts)
	a.ctrl = mapview.NewController(scene, mapview.ControllerOptions{
		Service:  svc,
		Uploader: uploader,
		Gateway:  gateway,
		Logger:   logger.WithField("component", "mapview"),
	})
	engine.ChangeScene(engine.AddScene(scene))

	if !o.demo {
		go a.do(ctx, "load", a.ctrl.Load)
		unfollow, err := a.ctrl.Follow(ctx)
		switch {
		case errors.Is(err, mapview.ErrNoSubscriber):
			logger.Debug("chain has no block feed; press R to reload")
		case err != nil:
			logger.WithError(err).Warn("block feed unavailable")
		default:
			defer unfollow()
		}
	}

	return engine.RunContext(ctx, fmt.Sprintf("%s (%s)", cfg.Window.Title, platform))
}

func (a *app) signIn(ctx context.Context, platform chain.Platform) {
	if err := a.svc.SignIn(ctx); err != nil {
		a.log.WithError(err).Warn("not signed in, the map is read only")
		return
	}
	account := a.svc.CurrentAccount()
	entry := a.log.WithFields(logrus.Fields{"platform": platform, "account": account})
	if bal, err := a.svc.Balance(ctx, account); err == nil {
		entry = entry.WithField("balance", bal.String()+" "+platform.NativeToken())
	}
	entry.Info("signed in")
}

// do runs a blocking action off the frame goroutine. Actions do not overlap.
func (a *app) do(ctx context.Context, name string, fn func(context.Context) error) {
	if !a.busy.CompareAndSwap(false, true) {
		a.log.WithField("action", name).Info("busy, try again")
		return
	}
	defer a.busy.Store(false)
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		a.log.WithField("action", name).WithError(err).Warn("action failed")
	}
}

func (a *app) onKey(ctx context.Context, key ebiten.Key) {
	switch key {
	case ebiten.KeyM:
		go a.do(ctx, "mint", a.ctrl.Mint)
	case ebiten.KeyP:
		go a.do(ctx, "pick", a.ctrl.Pick)
	case ebiten.KeyG:
		go a.do(ctx, "merge", a.ctrl.Merge)
	case ebiten.KeyR:
		go a.do(ctx, "load", a.ctrl.Load)
	case ebiten.KeyU:
		go a.do(ctx, "upload", a.upload)
	case ebiten.KeyEscape:
		a.ctrl.ClearSelection()
	}
}

func (a *app) upload(ctx context.Context) error {
	if a.image == "" {
		return errors.New("no -image given")
	}
	f, err := os.Open(a.image)
	if err != nil {
		return err
	}
	defer f.Close()
	return a.ctrl.Upload(ctx, filepath.Base(a.image), f)
}

// useLogger routes every package logger through l.
func useLogger(l *logrus.Logger) {
	pixelmap.SetLogger(l.WithField("component", "pixelmap"))
	chain.SetLogger(l.WithField("component", "chain"))
	storage.SetLogger(l.WithField("component", "storage"))
	mapview.SetLogger(l.WithField("component", "mapview"))
}
