package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"journal-core/internal/events"
	"journal-core/internal/monitor"
	"journal-core/internal/terminal"
	"journal-core/internal/ws"
	"journal-core/pkg/config"
	"journal-core/pkg/crypto"
	"journal-core/pkg/db"
)

// Server wires HTTP endpoints around the event bus and the socket gateway.
type Server struct {
	Router      *gin.Engine
	Bus         *events.Bus
	DB          *db.Database
	Queries     *db.UserQueries
	Vault       *crypto.Vault
	Terminals   *terminal.Manager
	Gateway     *ws.Gateway
	Metrics     *monitor.SystemMetrics
	JWTSecret   string
	BridgeToken string
	Meta        SystemMeta
}

// SystemMeta describes runtime status exposed to the UI.
type SystemMeta struct {
	Version string
}

// Deps collects the server's collaborators; keeps NewServer's signature sane.
type Deps struct {
	Bus         *events.Bus
	Database    *db.Database
	Vault       *crypto.Vault
	Terminals   *terminal.Manager
	Gateway     *ws.Gateway
	Metrics     *monitor.SystemMetrics
	Origins     *config.OriginPolicy
	JWTSecret   string
	BridgeToken string
	Meta        SystemMeta
}

// NewServer builds the router with the full middleware stack and all routes.
func NewServer(d Deps) *Server {
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())                      // Panic recovery (first)
	r.Use(RequestIDMiddleware())               // Request ID tracking
	r.Use(RequestLogger(d.Metrics))            // Request logging (after ID is set)
	r.Use(RateLimitMiddleware())               // Rate limiting
	r.Use(TimeoutMiddleware(30 * time.Second)) // Request timeout (30s)
	r.Use(CORSMiddleware(d.Origins))           // CORS (last before routes)

	s := &Server{
		Router:      r,
		Bus:         d.Bus,
		DB:          d.Database,
		Queries:     d.Database.Queries(),
		Vault:       d.Vault,
		Terminals:   d.Terminals,
		Gateway:     d.Gateway,
		Metrics:     d.Metrics,
		JWTSecret:   d.JWTSecret,
		BridgeToken: d.BridgeToken,
		Meta:        d.Meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	// Socket endpoints (authentication happens inside the handshake).
	s.Router.GET("/ws/trades", s.Gateway.HandleTrades)
	s.Router.GET("/ws/mt5", s.Gateway.HandleMT5)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)

		// Protected API
		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/trades", s.listTrades)
			protected.POST("/trades", s.createTrade)
			protected.PUT("/trades/:id", s.updateTrade)
			protected.DELETE("/trades/:id", s.deleteTrade)
			protected.POST("/trades/bulk", s.bulkImportTrades)
			protected.DELETE("/trades/bulk", s.bulkDeleteTrades)

			protected.GET("/mt5/accounts", s.listMT5Accounts)
			protected.POST("/mt5/accounts", s.createMT5Account)
			protected.DELETE("/mt5/accounts/:id", s.deleteMT5Account)
			protected.GET("/mt5/terminals", s.listUserTerminals)
		}

		// Terminal-bridge surface (shared-token auth, not user JWTs).
		bridge := api.Group("/bridge")
		bridge.Use(BridgeAuthMiddleware(s.BridgeToken))
		{
			bridge.POST("/positions", s.ingestPositions)
			bridge.POST("/terminals", s.registerTerminal)
			bridge.POST("/terminals/:id/heartbeat", s.terminalHeartbeat)
			bridge.POST("/terminals/:id/failure", s.terminalFailure)
			bridge.DELETE("/terminals/:id", s.deregisterTerminal)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version":        s.Meta.Version,
		"tradesSockets":  s.Gateway.TradesHub().Registry().ConnectionCount(),
		"mt5Sockets":     s.Gateway.MT5Hub().Registry().ConnectionCount(),
		"mt5UsersOnline": s.Gateway.MT5Hub().Registry().UserCount(),
		"terminals":      s.Terminals.Stats(),
	})
}

func (s *Server) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.Metrics.Stats())
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
