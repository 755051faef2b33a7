package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"ticket-core/config"
	"ticket-core/handlers"
	"ticket-core/internal/gateway"
	"ticket-core/monitoring"
	"ticket-core/security"
	"ticket-core/services"
	"ticket-core/utils"

	_ "ticket-core/migrations"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go"
	"github.com/redis/go-redis/v9"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	// Initialize Redis
	redisClient := utils.NewRedisClient(cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	defer redisClient.Close()

	// Initialize PubNub when keys are configured; a nil notifier discards.
	var pn *pubnub.PubNub
	if cfg.PubNubPublishKey != "" && cfg.PubNubSubscribeKey != "" {
		pnConfig := pubnub.NewConfig()
		pnConfig.PublishKey = cfg.PubNubPublishKey
		pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
		pnConfig.SecretKey = cfg.PubNubSecretKey
		pn = pubnub.NewPubNub(pnConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("init gateway: %w", err)
	}
	defer gw.Close(context.Background())

	var monitor *monitoring.Monitor
	if cfg.EnableMetrics {
		monitor = monitoring.NewMonitor(redisClient)
	}

	// Initialize services
	notifyService := services.NewNotifyService(pn)
	inventoryService := services.NewInventoryService(redisClient)
	reservationService := services.NewReservationService(redisClient, inventoryService, cfg, monitor)
	admissionService := services.NewAdmissionService(redisClient, cfg, notifyService)
	credentialService := services.NewCredentialService(redisClient, cfg)
	orderStore := services.NewOrderStore(redisClient)
	catalogService := services.NewCatalogService(app, redisClient)
	checkoutService := services.NewCheckoutService(orderStore, reservationService, inventoryService, catalogService, gw, credentialService, notifyService, cfg, monitor)
	webhookService := services.NewWebhookService(redisClient, orderStore, credentialService, notifyService, monitor)
	scanService := services.NewScanService(redisClient, orderStore, credentialService, catalogService, cfg, monitor)
	transferService := services.NewTransferService(redisClient, credentialService, notifyService, cfg)

	// Initialize handlers
	reservationHandler := handlers.NewReservationHandler(app, reservationService, admissionService)
	checkoutHandler := handlers.NewCheckoutHandler(app, checkoutService)
	webhookHandler := handlers.NewWebhookHandler(app, webhookService, gw)
	scanHandler := handlers.NewScanHandler(app, scanService)
	transferHandler := handlers.NewTransferHandler(app, transferService)
	admissionHandler := handlers.NewAdmissionHandler(app, admissionService)
	adminHandler := handlers.NewAdminHandler(app, admissionService, inventoryService, catalogService, webhookService)

	rateLimiter := security.NewRateLimiter(redisClient)

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: true,
	})

	// Start background tasks
	go reservationService.SweepExpired(ctx)
	go transferService.SweepExpiredTransfers(ctx, cfg.SweepInterval)

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(e *core.ServeEvent) error {
		go logWaitingBacklog(redisClient)

		// Reservation endpoints
		e.Router.POST("/api/v1/reservations", reservationHandler.CreateReservation).BindFunc(rateLimiter.AntiBot())
		e.Router.GET("/api/v1/reservations/{reservationId}", reservationHandler.GetReservation)
		e.Router.POST("/api/v1/reservations/{reservationId}/release", reservationHandler.ReleaseReservation)

		// Checkout endpoints
		e.Router.POST("/api/v1/checkout/initiate", checkoutHandler.InitiateCheckout)
		e.Router.POST("/api/v1/checkout/{orderId}/cancel", checkoutHandler.CancelOrder)
		e.Router.GET("/api/v1/orders", checkoutHandler.GetOrderHistory)

		// Gateway webhook
		e.Router.POST("/api/v1/webhooks/payment", webhookHandler.HandlePaymentWebhook)

		// Door scanning endpoints
		e.Router.POST("/api/v1/scan", scanHandler.Scan)
		e.Router.POST("/api/v1/scan/walk-up", scanHandler.WalkUpSale)

		// Share and transfer endpoints
		e.Router.POST("/api/v1/shares", transferHandler.CreateBundle)
		e.Router.GET("/api/v1/shares/{bundleId}", transferHandler.GetBundle)
		e.Router.POST("/api/v1/shares/{bundleId}/claim", transferHandler.ClaimSlot)
		e.Router.POST("/api/v1/shares/{bundleId}/reclaim", transferHandler.ReclaimSlot)
		e.Router.POST("/api/v1/transfers", transferHandler.CreateTransfer)
		e.Router.POST("/api/v1/transfers/{transferId}/accept", transferHandler.AcceptTransfer)
		e.Router.POST("/api/v1/transfers/{transferId}/cancel", transferHandler.CancelTransfer)

		// Admission endpoints
		e.Router.POST("/api/v1/admission/enqueue", admissionHandler.Enqueue).BindFunc(rateLimiter.PerActor("enqueue", 10))
		e.Router.GET("/api/v1/admission/status", admissionHandler.Status)

		// Admin endpoints
		e.Router.POST("/api/v1/admin/events/{eventId}/mode", adminHandler.SetMode)
		e.Router.POST("/api/v1/admin/events/{eventId}/admit-batch", adminHandler.AdmitBatch)
		e.Router.POST("/api/v1/admin/events/{eventId}/seed-inventory", adminHandler.SeedInventory)
		e.Router.GET("/api/v1/admin/anomalies", adminHandler.Anomalies)

		if cfg.EnableMetrics {
			e.Router.GET("/metrics", func(e *core.RequestEvent) error {
				promhttp.Handler().ServeHTTP(e.Response, e.Request)
				return nil
			})
		}

		// Health check
		e.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := utils.RedisHealthCheck(redisClient); err != nil {
				return e.JSON(503, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(200, map[string]string{"status": "healthy"})
		})

		log.Println("Server routes registered")

		return e.Next()
	})

	// Start server
	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
	return nil
}

// logWaitingBacklog reports any admission queues that survived a restart.
// Waiting lists live in Redis, so nothing needs rebuilding; operators just
// want to know the backlog is still there.
func logWaitingBacklog(redisClient *redis.Client) {
	ctx := context.Background()

	keys, err := redisClient.Keys(ctx, "admit:waiting:*").Result()
	if err != nil {
		log.Printf("Error scanning waiting lists: %v", err)
		return
	}

	for _, key := range keys {
		length, _ := redisClient.LLen(ctx, key).Result()
		if length > 0 {
			log.Printf("Waiting list %s has %d users after restart", key, length)
		}
	}
}

// handleShutdown handles graceful shutdown
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutdown signal received, cleaning up...")
	cancel()
}
