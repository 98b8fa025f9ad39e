package devnet

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/phanxgames/pixelmap/chain"
	"github.com/sirupsen/logrus"
)

type ServerOptions struct {
	// AllowOrigins lists the browser origins allowed by CORS. Empty allows
	// every origin.
	AllowOrigins []string
	Logger       logrus.FieldLogger
}

// Server exposes a chain.Memory contract over HTTP and websocket.
type Server struct {
	mem     *chain.Memory
	engine  *gin.Engine
	hub     *Hub
	log     logrus.FieldLogger
	unwatch func()
}

func NewServer(mem *chain.Memory, opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger().WithField("component", "devnet")
	}
	s := &Server{
		mem: mem,
		hub: newHub(opts.Logger),
		log: opts.Logger,
	}

	corsConfig := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", AccountHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(opts.AllowOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.AllowOrigins
	}

	e := gin.New()
	e.Use(gin.Recovery(), requestLogger(s.log), cors.New(corsConfig))
	s.routes(e.Group("/api"))
	e.GET("/ws", gin.WrapH(s.hub))
	s.engine = e

	s.unwatch = mem.Watch(s.broadcast)
	return s
}

func (s *Server) routes(g *gin.RouterGroup) {
	g.GET("/block", s.getBlock)
	g.GET("/accounts", s.getAccounts)
	g.GET("/accounts/:addr/balance", s.getBalance)
	g.GET("/accounts/:addr/picks", s.getAccountPicks)
	g.GET("/pixels", s.getPixels)
	g.GET("/picks", s.getPicks)
	g.GET("/images", s.getImages)
	g.GET("/uncovered", s.getUncovered)

	g.POST("/mint", s.areaWrite(s.mem.MintAs))
	g.POST("/pick", s.areaWrite(s.mem.PickAs))
	g.POST("/merge", s.areaWrite(s.mem.MergeAs))
	g.POST("/image", s.setImage)
	g.POST("/fund", s.fund)
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Run serves on addr until ctx is done, producing an empty block every
// blockTime. A zero blockTime only produces blocks on writes.
func (s *Server) Run(ctx context.Context, addr string, blockTime time.Duration) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 10 * time.Second}

	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("devnet listening")
		errc <- srv.ListenAndServe()
	}()
	if blockTime > 0 {
		go s.tick(ctx, blockTime)
	}

	select {
	case err := <-errc:
		s.Close()
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) tick(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.mem.Advance()
		case <-ctx.Done():
			return
		}
	}
}

// Close stops broadcasting and disconnects websocket clients.
func (s *Server) Close() {
	s.unwatch()
	s.hub.Close()
}

func (s *Server) broadcast(ev chain.Event) {
	block := ev.Block
	s.hub.Broadcast(Message{Type: MessageBlock, Block: &block})
	for addr, bal := range ev.Balances {
		s.hub.Broadcast(Message{Type: MessageBalance, Address: addr, Balance: &bal})
	}
}

// --- handlers ---

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:      codeSuccess,
		Msg:       "success",
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}

func fail(c *gin.Context, err error) {
	code, status := classify(err)
	c.JSON(status, Response{Code: code, Msg: err.Error(), Timestamp: time.Now().Unix()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Code: codeBadRequest, Msg: err.Error(), Timestamp: time.Now().Unix()})
}

// read wraps a contract read into a handler.
func read[T any](c *gin.Context, fn func(context.Context) (T, error)) {
	v, err := fn(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, v)
}

func (s *Server) getBlock(c *gin.Context) {
	ok(c, s.mem.CurrentBlock())
}

func (s *Server) getAccounts(c *gin.Context)  { read(c, s.mem.Accounts) }
func (s *Server) getPixels(c *gin.Context)    { read(c, s.mem.Pixels) }
func (s *Server) getPicks(c *gin.Context)     { read(c, s.mem.PickedPixels) }
func (s *Server) getImages(c *gin.Context)    { read(c, s.mem.PixelImages) }
func (s *Server) getUncovered(c *gin.Context) { read(c, s.mem.UncoveredPixels) }

func (s *Server) getBalance(c *gin.Context) {
	bal, err := s.mem.Balance(c.Request.Context(), c.Param("addr"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, balanceData{Balance: bal})
}

func (s *Server) getAccountPicks(c *gin.Context) {
	ids, err := s.mem.AccountPickedPixels(c.Request.Context(), c.Param("addr"))
	if err != nil {
		fail(c, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	ok(c, ids)
}

type areaFunc func(ctx context.Context, account string, id uint64, w, h int) error

func (s *Server) areaWrite(fn areaFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AreaRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		if err := fn(c.Request.Context(), c.GetHeader(AccountHeader), req.ID, req.Width, req.Height); err != nil {
			fail(c, err)
			return
		}
		ok(c, s.mem.CurrentBlock())
	}
}

func (s *Server) setImage(c *gin.Context) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	err := s.mem.SetImageAs(c.Request.Context(), c.GetHeader(AccountHeader), req.ID, req.Ref, req.Width, req.Height)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, s.mem.CurrentBlock())
}

func (s *Server) fund(c *gin.Context) {
	var req FundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if !req.Amount.IsPositive() {
		badRequest(c, errors.New("amount must be positive"))
		return
	}
	if err := s.mem.Fund(req.Address, req.Amount); err != nil {
		badRequest(c, err)
		return
	}
	ok(c, s.mem.CurrentBlock())
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start),
		}).Debug("request")
	}
}
