// Package server exposes the HTTP surface: the provider-facing notification
// endpoint, the shopper's redirect-return endpoint and a health check.
package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"adyen-notify/internal/config"
	"adyen-notify/internal/database"
	"adyen-notify/internal/domain"
	"adyen-notify/internal/lock"
	"adyen-notify/internal/service"
)

const (
	bodyAccepted = "[accepted]"
	bodyRefused  = "[refused]"
)

type Server struct {
	cfg           *config.Config
	engine        *gin.Engine
	notifications *service.NotificationService
	orders        *service.OrderService
	health        database.Service
	logger        *zap.SugaredLogger
}

func New(
	cfg *config.Config,
	notifications *service.NotificationService,
	orders *service.OrderService,
	health database.Service,
	logger *zap.SugaredLogger,
) *Server {
	s := &Server{
		cfg:           cfg,
		notifications: notifications,
		orders:        orders,
		health:        health,
		logger:        logger,
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.Default())

	engine.GET("/health", s.handleHealth)
	engine.GET("/checkout/payment/adyen", s.handleRedirectReturn)

	notify := engine.Group("/adyen")
	notify.Use(gin.BasicAuth(gin.Accounts{cfg.Notify.User: cfg.Notify.Password}))
	notify.POST("/notify", s.handleNotify)

	s.engine = engine
	return s
}

// Handler returns the router; used by tests and by Run.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Run() error {
	return s.engine.Run(s.cfg.ListenAddr)
}

// handleNotify acknowledges with literal bodies over HTTP 200, because the
// provider's retry policy keys off the body: "[accepted]" stops redelivery,
// anything else triggers a retry. A duplicate is an accept, since the first
// delivery already did the work. A lock timeout is a refuse: the record is
// stored, we just want the event redelivered once the order frees up.
func (s *Server) handleNotify(c *gin.Context) {
	if err := c.Request.ParseForm(); err != nil {
		c.String(http.StatusOK, bodyRefused)
		return
	}
	params := make(map[string]string, len(c.Request.PostForm))
	for k, v := range c.Request.PostForm {
		if len(v) > 0 {
			params[k] = v[0]
		}
	}

	err := s.notifications.Handle(c.Request.Context(), params)
	switch {
	case err == nil, errors.Is(err, domain.ErrDuplicateNotification):
		c.String(http.StatusOK, bodyAccepted)
	case errors.Is(err, lock.ErrLockFailed):
		c.String(http.StatusOK, bodyRefused)
	case errors.Is(err, domain.ErrMalformedNotification):
		s.logger.Warnw("malformed notification", "error", err)
		c.String(http.StatusOK, bodyRefused)
	default:
		s.logger.Errorw("notification handling failed", "error", err)
		c.String(http.StatusOK, bodyRefused)
	}
}

func (s *Server) handleRedirectReturn(c *gin.Context) {
	merchantReference := c.Query("merchantReference")
	pspReference := c.Query("pspReference")
	authResult := c.Query("authResult")
	merchantSig := c.Query("merchantSig")

	if !s.verifySignature(authResult, merchantReference, pspReference, merchantSig) {
		c.String(http.StatusForbidden, "invalid signature")
		return
	}

	err := s.orders.FinalizeRedirect(c.Request.Context(), merchantReference, pspReference, authResult)
	switch {
	case err == nil:
		c.Redirect(http.StatusFound, "/orders/"+merchantReference)
	case errors.Is(err, domain.ErrOrderNotFound), errors.Is(err, domain.ErrPaymentNotFound):
		c.String(http.StatusNotFound, "order not found")
	case errors.Is(err, lock.ErrLockFailed):
		// A notification holds the order; the shopper can safely retry.
		c.String(http.StatusServiceUnavailable, "please retry")
	default:
		s.logger.Errorw("redirect finalization failed", "order", merchantReference, "error", err)
		c.String(http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, s.health.Health(c.Request.Context()))
}

// verifySignature checks the provider's HMAC over the redirect parameters.
// An empty shared secret disables the check for local development.
func (s *Server) verifySignature(authResult, merchantReference, pspReference, merchantSig string) bool {
	secret := s.cfg.Adyen.SharedSecret
	if secret == "" {
		return true
	}
	expected := SignRedirect(secret, authResult, merchantReference, pspReference)
	return hmac.Equal([]byte(expected), []byte(merchantSig))
}

// SignRedirect computes the merchantSig for a redirect return. Exported so
// tests and the simulator can produce valid requests.
func SignRedirect(secret, authResult, merchantReference, pspReference string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(authResult + ":" + merchantReference + ":" + pspReference))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
