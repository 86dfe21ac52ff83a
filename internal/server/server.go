// Package server exposes the REST surface over the ledger and household
// services. Handlers stay thin: parse, call a service, render.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/krsoni/homeledger/internal/apperr"
	"github.com/krsoni/homeledger/internal/attachments"
	"github.com/krsoni/homeledger/internal/auth"
	"github.com/krsoni/homeledger/internal/email"
	"github.com/krsoni/homeledger/internal/household"
	"github.com/krsoni/homeledger/internal/ledger"
	"github.com/krsoni/homeledger/internal/middleware"
)

// Server wires the HTTP routes to the services.
type Server struct {
	router *gin.Engine

	authenticator auth.Authenticator
	jwt           *auth.JWTManager
	mailer        email.Mailer
	households    *household.Service
	ledger        *ledger.Service
	attachments   attachments.Store
}

// New builds the router with all routes registered. attachmentsDir, when
// non-empty, is served statically under /attachments.
func New(authenticator auth.Authenticator, jwt *auth.JWTManager, mailer email.Mailer, households *household.Service, ledgerSvc *ledger.Service, att attachments.Store, attachmentsDir string) *Server {
	s := &Server{
		authenticator: authenticator,
		jwt:           jwt,
		mailer:        mailer,
		households:    households,
		ledger:        ledgerSvc,
		attachments:   att,
	}

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(), middleware.Metrics())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if attachmentsDir != "" {
		router.Static("/attachments", attachmentsDir)
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/register", s.register)
		v1.POST("/auth/login", s.login)
	}

	authed := v1.Group("", middleware.RequireAuth(jwt))
	{
		authed.POST("/households", s.createHousehold)
		authed.POST("/households/join", s.joinHousehold)
		authed.GET("/households/:id", s.getHousehold)
		authed.PUT("/households/:id/primary-holder", s.setPrimaryHolder)
		authed.POST("/households/:id/invites", s.sendInvites)
		authed.GET("/households/:id/audit", s.listAudit)

		authed.POST("/expenses", s.createExpense)
		authed.GET("/expenses", s.listExpenses)
		authed.GET("/expenses/:id", s.getExpense)
		authed.PATCH("/expenses/:id", s.updateExpense)
		authed.DELETE("/expenses/:id", s.deleteExpense)
		authed.POST("/expenses/:id/settle", s.markSettled)

		authed.POST("/milk", s.upsertMilkDay)
		authed.GET("/milk", s.listMonthMilk)
		authed.POST("/milk/generate", s.generateMonthlyMilk)
	}

	s.router = router
	return s
}

// Handler returns the root http.Handler for serving.
func (s *Server) Handler() http.Handler {
	return s.router
}

// respondError renders an error with the status its kind maps to. Internal
// causes never reach the response body.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		status = http.StatusBadRequest
	case apperr.KindUnauthorized:
		status = http.StatusUnauthorized
	case apperr.KindForbidden:
		status = http.StatusForbidden
	case apperr.KindNotFound:
		status = http.StatusNotFound
	case apperr.KindConflict:
		status = http.StatusConflict
	case apperr.KindTransient:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": apperr.Message(err)})
}
