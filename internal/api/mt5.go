package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"journal-core/internal/events"
	"journal-core/internal/terminal"
	"journal-core/pkg/db"
)

// listMT5Accounts returns the caller's linked accounts. Credentials never
// leave the server; PasswordEnc is excluded from serialization.
func (s *Server) listMT5Accounts(c *gin.Context) {
	accounts, err := s.Queries.GetMT5AccountsByUser(c.Request.Context(), CurrentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	if accounts == nil {
		accounts = []db.MT5Account{}
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts, "count": len(accounts)})
}

// createMT5Account links a terminal account. The investor password is sealed
// before it touches the database.
func (s *Server) createMT5Account(c *gin.Context) {
	var req struct {
		Name     string `json:"name"`
		Login    string `json:"login"`
		Server   string `json:"server"`
		Password string `json:"password"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}

	req.Login = strings.TrimSpace(req.Login)
	req.Server = strings.TrimSpace(req.Server)
	if req.Login == "" || req.Server == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_ACCOUNT",
			"error": "login, server and password are required",
		})
		return
	}
	if req.Name == "" {
		req.Name = req.Login + "@" + req.Server
	}

	sealed, err := s.Vault.Seal(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "ENCRYPTION_FAILED",
			"error": "could not store credentials",
		})
		return
	}

	account := db.MT5Account{
		ID:          uuid.NewString(),
		UserID:      CurrentUserID(c),
		Name:        req.Name,
		Login:       req.Login,
		Server:      req.Server,
		PasswordEnc: sealed,
		IsActive:    true,
	}
	if err := s.Queries.CreateMT5Account(c.Request.Context(), account); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, account)
}

// deleteMT5Account deactivates an account link.
func (s *Server) deleteMT5Account(c *gin.Context) {
	accountID := c.Param("id")

	err := s.Queries.DeactivateMT5Account(c.Request.Context(), CurrentUserID(c), accountID)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":  "ACCOUNT_NOT_FOUND",
				"error": "account not found",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":  "INTERNAL_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": accountID})
}

// listUserTerminals reports the caller's live terminal instances.
func (s *Server) listUserTerminals(c *gin.Context) {
	instances := s.Terminals.ForUser(CurrentUserID(c))
	c.JSON(http.StatusOK, gin.H{"terminals": instances, "count": len(instances)})
}

// ingestPositions receives a positions snapshot from the terminal bridge and
// fans it out to the owning user's sockets.
func (s *Server) ingestPositions(c *gin.Context) {
	var snap events.PositionsSnapshot
	if err := c.BindJSON(&snap); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if snap.UserID == "" || snap.AccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_SNAPSHOT",
			"error": "userId and accountId are required",
		})
		return
	}
	if snap.Positions == nil {
		snap.Positions = []events.Position{}
	}

	s.Bus.Publish(events.TopicPositionsSnapshot, snap)
	c.JSON(http.StatusAccepted, gin.H{"positions": len(snap.Positions)})
}

// registerTerminal tracks a freshly launched terminal process.
func (s *Server) registerTerminal(c *gin.Context) {
	var req struct {
		AccountID string `json:"accountId"`
		UserID    string `json:"userId"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_PAYLOAD",
			"error": "invalid request payload",
		})
		return
	}
	if req.AccountID == "" || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  "INVALID_TERMINAL",
			"error": "accountId and userId are required",
		})
		return
	}

	inst, err := s.Terminals.Register(req.AccountID, req.UserID)
	if err != nil {
		switch {
		case errors.Is(err, terminal.ErrAlreadyRunning):
			c.JSON(http.StatusConflict, gin.H{
				"code":  "TERMINAL_ALREADY_RUNNING",
				"error": err.Error(),
			})
		case errors.Is(err, terminal.ErrPoolFull):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"code":  "TERMINAL_POOL_FULL",
				"error": err.Error(),
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":  "INTERNAL_ERROR",
				"error": err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusCreated, inst)
}

// terminalHeartbeat refreshes an instance's liveness window.
func (s *Server) terminalHeartbeat(c *gin.Context) {
	if err := s.Terminals.Heartbeat(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "TERMINAL_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// terminalFailure records a bridge-side failure for an instance.
func (s *Server) terminalFailure(c *gin.Context) {
	if err := s.Terminals.ReportFailure(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "TERMINAL_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// deregisterTerminal drops an instance that shut down cleanly.
func (s *Server) deregisterTerminal(c *gin.Context) {
	if err := s.Terminals.Deregister(c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":  "TERMINAL_NOT_FOUND",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}
