package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"simex/manager"
	"simex/market"
	"simex/runner"
	"simex/sim"
)

// TradeHistory reads back the trade ledger for the API.
type TradeHistory interface {
	RecentTrades(ctx context.Context, mode string, limit int) ([]sim.TradeRecord, error)
}

// Server HTTP API server
type Server struct {
	router     *gin.Engine
	manager    *manager.Manager
	market     *market.Client
	history    TradeHistory
	cronSecret string
	port       int
	startedAt  time.Time
}

// NewServer creates API server
func NewServer(mgr *manager.Manager, mkt *market.Client, history TradeHistory, cronSecret string, port int) *Server {
	// Set to Release mode (reduces log output)
	gin.SetMode(gin.ReleaseMode)

	router := gin.Default()

	// Add request logging middleware for debugging
	router.Use(func(c *gin.Context) {
		log.Printf("📥 Incoming request: %s %s%s (from %s)",
			c.Request.Method, c.Request.Host, c.Request.URL.Path, c.ClientIP())
		c.Next()
	})

	// Enable CORS
	router.Use(corsMiddleware())

	s := &Server{
		router:     router,
		manager:    mgr,
		market:     mkt,
		history:    history,
		cronSecret: cronSecret,
		port:       port,
		startedAt:  time.Now(),
	}

	s.setupRoutes()

	return s
}

// corsMiddleware CORS middleware
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Cache-Control")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}

// setupRoutes sets up routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Any("/health", s.handleHealth)

	// API route group
	api := s.router.Group("/api")
	{
		// Simulator list
		api.GET("/simulators", s.handleSimulatorList)

		// Simulator-specific data (use query parameter ?sim_id=xxx)
		api.GET("/portfolio", s.handlePortfolio)
		api.GET("/positions", s.handlePositions)
		api.GET("/trades", s.handleTrades)
		api.GET("/status", s.handleStatus)

		// Shared market data cache
		api.GET("/market-data", s.handleMarketData)

		// Cycle trigger (guarded by bearer token) and portfolio reset
		api.POST("/cycle", s.handleCycle)
		api.POST("/reset", s.handleReset)
	}

	// Add 404 handler for unmatched routes
	s.router.NoRoute(func(c *gin.Context) {
		log.Printf("❌ 404 - Route not found: %s %s%s",
			c.Request.Method, c.Request.Host, c.Request.URL.Path)
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("route not found: %s %s", c.Request.Method, c.Request.URL.Path),
		})
	})
}

// handleHealth health check
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// getRunnerFromQuery gets the target simulator from the sim_id query
// parameter. With a single configured simulator the parameter may be
// omitted.
func (s *Server) getRunnerFromQuery(c *gin.Context) (*runner.Runner, bool) {
	r, err := s.manager.Get(c.Query("sim_id"))
	if err != nil {
		status := http.StatusNotFound
		if c.Query("sim_id") == "" {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return nil, false
	}
	return r, true
}

// handleSimulatorList simulator list
func (s *Server) handleSimulatorList(c *gin.Context) {
	runners := s.manager.All()
	list := make([]gin.H, 0, len(runners))
	for _, r := range runners {
		list = append(list, gin.H{
			"id":      r.ID(),
			"name":    r.Name(),
			"mode":    r.Engine().Mode(),
			"running": r.IsRunning(),
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"simulators": list,
		"count":      len(list),
	})
}

// handlePortfolio full portfolio snapshot
func (s *Server) handlePortfolio(c *gin.Context) {
	r, ok := s.getRunnerFromQuery(c)
	if !ok {
		return
	}

	portfolio, err := r.Engine().Portfolio(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to get portfolio: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, portfolio)
}

// handlePositions open position list
func (s *Server) handlePositions(c *gin.Context) {
	r, ok := s.getRunnerFromQuery(c)
	if !ok {
		return
	}

	portfolio, err := r.Engine().Portfolio(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to get positions: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"positions": portfolio.Positions,
		"count":     len(portfolio.Positions),
	})
}

// handleTrades recent trade history, newest first
func (s *Server) handleTrades(c *gin.Context) {
	r, ok := s.getRunnerFromQuery(c)
	if !ok {
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	trades, err := s.history.RecentTrades(c.Request.Context(), r.Engine().Mode(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to get trades: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

// handleStatus simulator status summary
func (s *Server) handleStatus(c *gin.Context) {
	r, ok := s.getRunnerFromQuery(c)
	if !ok {
		return
	}

	portfolio, err := r.Engine().Portfolio(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to get status: %v", err),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":              r.ID(),
		"name":            r.Name(),
		"mode":            r.Engine().Mode(),
		"running":         r.IsRunning(),
		"initial_balance": r.Engine().InitialBalance(),
		"account_value":   portfolio.AccountValue,
		"available_cash":  portfolio.AvailableCash,
		"total_return":    portfolio.TotalReturn,
		"open_positions":  len(portfolio.Positions),
		"last_updated":    portfolio.LastUpdated,
	})
}

// handleMarketData current market data for the configured symbols
func (s *Server) handleMarketData(c *gin.Context) {
	force := c.Query("force") == "true"

	snapshot, err := s.market.Snapshot(c.Request.Context(), force)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": fmt.Sprintf("failed to get market data: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"market_data": snapshot,
		"count":       len(snapshot),
	})
}

// handleCycle triggers one trade cycle. Intended for external cron
// schedulers, so it requires the configured bearer token. An optional
// JSON body is used as the signal payload; with an empty body the
// runner pulls from its own signal source.
func (s *Server) handleCycle(c *gin.Context) {
	if s.cronSecret != "" {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cronSecret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing bearer token"})
			return
		}
	}

	r, ok := s.getRunnerFromQuery(c)
	if !ok {
		return
	}

	var err error
	if c.Request.ContentLength > 0 {
		var signal any
		if bindErr := c.ShouldBindJSON(&signal); bindErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("invalid signal payload: %v", bindErr),
			})
			return
		}
		err = r.RunCycleWithSignal(c.Request.Context(), signal)
	} else {
		err = r.RunCycle(c.Request.Context())
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("cycle failed: %v", err),
		})
		return
	}

	portfolio, err := r.Engine().Portfolio(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("cycle succeeded but snapshot read failed: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"portfolio": portfolio,
	})
}

// handleReset resets the portfolio to a fresh starting balance
func (s *Server) handleReset(c *gin.Context) {
	r, ok := s.getRunnerFromQuery(c)
	if !ok {
		return
	}

	var body struct {
		InitialBalance float64 `json:"initial_balance"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": fmt.Sprintf("invalid request body: %v", err),
			})
			return
		}
		if body.InitialBalance < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "initial_balance cannot be negative"})
			return
		}
	}

	portfolio, err := r.Engine().Reset(c.Request.Context(), body.InitialBalance)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": fmt.Sprintf("failed to reset portfolio: %v", err),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "reset",
		"portfolio": portfolio,
	})
}

// Start starts the server
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.port)
	log.Printf("🌐 API server started at http://localhost%s", addr)
	log.Printf("📊 API Documentation:")
	log.Printf("  • GET  /api/simulators            - Simulator list")
	log.Printf("  • GET  /api/portfolio?sim_id=xxx  - Get portfolio snapshot")
	log.Printf("  • GET  /api/positions?sim_id=xxx  - Get open positions")
	log.Printf("  • GET  /api/trades?sim_id=xxx&limit=50 - Get recent trades")
	log.Printf("  • GET  /api/status?sim_id=xxx     - Get simulator status")
	log.Printf("  • GET  /api/market-data           - Get current market data")
	log.Printf("  • POST /api/cycle?sim_id=xxx      - Trigger a trade cycle (Bearer auth)")
	log.Printf("  • POST /api/reset?sim_id=xxx      - Reset portfolio (body: {initial_balance?})")
	log.Printf("  • GET  /health                    - Health check")
	log.Println()

	return s.router.Run(addr)
}
