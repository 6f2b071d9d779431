package ledger

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tally-systems/tally/internal/account"
	httperr "github.com/tally-systems/tally/internal/core/errors"
)

const (
	msgReadBodyFailed = "Failed to read request body"
	msgInvalidJSON    = "Invalid JSON body"
)

type openRequest struct {
	Owner          string          `json:"owner"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
}

type amountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// RegisterRoutes registers the ledger API routes.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.POST("/v1/accounts", s.OpenHandler)
	r.POST("/v1/accounts/:id/deposit", s.DepositHandler)
	r.POST("/v1/accounts/:id/withdraw", s.WithdrawHandler)
	r.GET("/v1/accounts/:id", s.GetHandler)
	r.GET("/v1/accounts", s.ListHandler)
	r.GET("/v1/audit/events", s.AuditHandler)
}

// OpenHandler handles HTTP POST requests that open a new account.
func (s *Service) OpenHandler(c *gin.Context) {
	var req openRequest
	if !s.bindBody(c, &req) {
		return
	}

	proj, err := s.OpenAccount(c.Request.Context(), req.Owner, req.InitialBalance)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Account opened",
		"account_id", proj.ID,
		"owner", proj.Owner,
		"initial_balance", proj.Balance)
	c.JSON(http.StatusCreated, proj)
}

// DepositHandler handles HTTP POST requests that deposit funds.
func (s *Service) DepositHandler(c *gin.Context) {
	var req amountRequest
	if !s.bindBody(c, &req) {
		return
	}

	id := c.Param("id")
	proj, err := s.Deposit(c.Request.Context(), id, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Funds deposited", "account_id", id, "amount", req.Amount, "balance", proj.Balance)
	c.JSON(http.StatusOK, proj)
}

// WithdrawHandler handles HTTP POST requests that withdraw funds.
func (s *Service) WithdrawHandler(c *gin.Context) {
	var req amountRequest
	if !s.bindBody(c, &req) {
		return
	}

	id := c.Param("id")
	proj, err := s.Withdraw(c.Request.Context(), id, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}

	slog.Info("Funds withdrawn", "account_id", id, "amount", req.Amount, "balance", proj.Balance)
	c.JSON(http.StatusOK, proj)
}

// GetHandler returns the derived projection for one account.
func (s *Service) GetHandler(c *gin.Context) {
	proj, err := s.GetAccount(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, proj)
}

// ListHandler returns the projections of all known accounts.
func (s *Service) ListHandler(c *gin.Context) {
	projections, err := s.ListAccounts(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": projections})
}

// AuditHandler returns the global ordered event feed.
func (s *Service) AuditHandler(c *gin.Context) {
	events, err := s.AuditLog(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// bindBody reads the request body under the configured size limit and binds
// it into target. On failure it writes the error response and returns false.
func (s *Service) bindBody(c *gin.Context, target interface{}) bool {
	maxBytes := int64(s.maxBodySizeBytes)
	limitedBody := io.LimitReader(c.Request.Body, maxBytes+1) // +1 to detect oversized requests

	bodyBytes, err := io.ReadAll(limitedBody)
	if err != nil {
		slog.Error("Failed to read request body", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   msgReadBodyFailed,
		})
		return false
	}

	if int64(len(bodyBytes)) > maxBytes {
		slog.Warn("Request body exceeds maximum size", "size", len(bodyBytes), "max", maxBytes)
		c.JSON(http.StatusRequestEntityTooLarge, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "Request body exceeds maximum allowed size",
			Details: map[string]interface{}{
				"max_size_kb": maxBytes / 1024,
			},
		})
		return false
	}

	c.Request.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	if err := c.ShouldBindJSON(target); err != nil {
		slog.Warn("Invalid JSON body received", "error", err, "payload_size", len(bodyBytes))
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   msgInvalidJSON,
		})
		return false
	}
	return true
}

// writeError maps the error taxonomy onto HTTP responses. Order matters:
// ErrUnknownAccount is a subtype of ErrInvalidCommand and must match first.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, account.ErrUnknownAccount):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpUnknownAccountError,
			Message:   err.Error(),
		})
	case errors.Is(err, account.ErrInvalidCommand):
		c.JSON(http.StatusUnprocessableEntity, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidCommandError,
			Message:   err.Error(),
		})
	case errors.Is(err, ErrConflict):
		c.JSON(http.StatusConflict, httperr.ErrorResponse{
			ErrorType: httperr.HttpConflictError,
			Message:   err.Error(),
		})
	default:
		slog.Error("Request failed", "error", err)
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "Internal error",
		})
	}
}
