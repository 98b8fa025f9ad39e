// Pixeldevnet runs a local pixel chain and content store for development.
//
// The chain API listens on devnet.listen and the IPFS-compatible store on
// devnet.storage_listen. Point pixelmap at them with platform=devnet,
// ipfs.api=http://<storage_listen> and ipfs.gateway=http://<storage_listen>/ipfs/.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/phanxgames/pixelmap/chain/devnet"
	"github.com/phanxgames/pixelmap/config"
	"github.com/phanxgames/pixelmap/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

func main() {
	configFile := flag.String("config", "", "config file (default ./pixelmap.yaml if present)")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal(err)
	}
	logger, closer, err := config.NewLogger(cfg.Log)
	if err != nil {
		log.Fatal(err)
	}
	if !logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.ReleaseMode)
	}
	chain.SetLogger(logger.WithField("component", "chain"))
	storage.SetLogger(logger.WithField("component", "storage"))

	err = run(cfg, logger)
	closer.Close()
	if err != nil {
		logger.WithError(err).Error("devnet stopped")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	price, funds, err := cfg.Devnet.Amounts()
	if err != nil {
		return err
	}
	accounts := cfg.Devnet.ChainAccounts()
	mem := chain.NewMemory(chain.MemoryOptions{Price: price, Funds: funds, Accounts: accounts})
	srv := devnet.NewServer(mem, devnet.ServerOptions{
		AllowOrigins: cfg.Devnet.AllowOrigins,
		Logger:       logger.WithField("component", "devnet"),
	})
	store := storage.NewMemory(cfg.IPFS.MaxBytes)

	logger.WithFields(logrus.Fields{
		"accounts": len(accounts),
		"price":    price.String(),
		"funds":    funds.String(),
	}).Info("devnet ready")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(ctx, cfg.Devnet.Listen, cfg.Devnet.BlockTime)
	})
	g.Go(func() error {
		return serveStore(ctx, cfg.Devnet.StorageListen, store, logger)
	})
	return g.Wait()
}

// serveStore serves the content store on addr until ctx is done.
func serveStore(ctx context.Context, addr string, store *storage.Memory, logger *logrus.Logger) error {
	srv := &http.Server{Addr: addr, Handler: store.Handler(), ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("content store listening")
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
