package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/microcloud/backend/internal/config"
	"github.com/microcloud/backend/internal/reconcile"
	"github.com/microcloud/backend/internal/store"
)

// Notifier sends transactional customer email
type Notifier interface {
	SendOrderCreated(ctx context.Context, to, firstName string, customerID int64, amountUSD float64) error
	SendPaymentConfirmed(ctx context.Context, customerID int64) error
	SendPasswordReset(ctx context.Context, to, otp string) error
}

// Server is the MicroCloud HTTP API: the public checkout/payment surface, the
// customer portal and the admin panel API.
type Server struct {
	cfg        *config.Config
	store      *store.Store
	reconciler *reconcile.Reconciler
	mailer     Notifier
	log        *slog.Logger

	router *gin.Engine
	server *http.Server
	otps   *otpStore

	// baseCtx bounds work that outlives a request: payment session polling
	// and fire-and-forget emails
	baseCtx context.Context
}

// NewServer creates the API server and wires up all routes
func NewServer(cfg *config.Config, st *store.Store, rec *reconcile.Reconciler, ml Notifier, log *slog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		cfg:        cfg,
		store:      st,
		reconciler: rec,
		mailer:     ml,
		log:        log,
		router:     router,
		otps:       newOTPStore(),
		baseCtx:    context.Background(),
	}

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/plans", s.handleListPlans)
		api.GET("/regions", s.handleListRegions)

		api.GET("/order", s.handleGetOrder)
		api.POST("/order", s.handleCreateOrder)
		api.PATCH("/order", s.handlePatchOrder)

		api.POST("/payment-session", s.handleCreatePaymentSession)
		api.GET("/payment-session/:id", s.handleGetPaymentSession)
		api.DELETE("/payment-session/:id", s.handleStopPaymentSession)

		api.POST("/send-order-email", s.handleSendOrderEmail)
		api.POST("/send-payment-email", s.handleSendPaymentEmail)

		api.POST("/authenticate", s.handleCustomerLogin)
		api.POST("/forgot-password", s.handleForgotPassword)

		portal := api.Group("", s.customerAuth())
		{
			portal.GET("/dashboard", s.handleDashboard)
			portal.GET("/tickets", s.handleListTickets)
			portal.POST("/tickets", s.handleCreateTicket)
			portal.PATCH("/tickets/:id", s.handleResolveTicket)
			portal.GET("/tickets/:id/messages", s.handleListTicketMessages)
			portal.POST("/tickets/:id/messages", s.handleAddTicketMessage)
		}

		admin := api.Group("/admin")
		{
			admin.POST("/login", s.handleAdminLogin)

			protected := admin.Group("", s.adminAuth())
			{
				protected.GET("/orders", s.handleListOrders)
				protected.GET("/transactions", s.handleListTransactions)
				protected.GET("/gaps", s.handleListGaps)
				protected.POST("/cancel", s.handleCancelSubscription)

				protected.GET("/stats", s.handleDashboardStats)
				protected.GET("/audit-logs", s.handleListAdminLogs)

				protected.GET("/customers", s.handleListCustomers)
				protected.PUT("/customers", s.handleUpdateCustomer)
				protected.DELETE("/customers/:id", s.handleDeleteCustomer)

				protected.GET("/nodes", s.handleListNodes)
				protected.POST("/nodes", s.handleCreateNode)
				protected.PUT("/nodes", s.handleUpdateNode)
				protected.DELETE("/nodes", s.handleDeleteNode)

				protected.GET("/ticket-messages", s.handleAdminListTicketMessages)
				protected.POST("/ticket-messages", s.handleAdminReplyTicket)
			}
		}
	}

	return s
}

// Start runs the HTTP server until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.baseCtx = ctx

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	s.log.Info("starting api server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

// Handler exposes the router for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
