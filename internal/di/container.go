package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/clearbay/orders/internal/handlers"
	"github.com/clearbay/orders/internal/payments"
	"github.com/clearbay/orders/internal/platform/auth"
	"github.com/clearbay/orders/internal/platform/config"
	platformfs "github.com/clearbay/orders/internal/platform/firestore"
	"github.com/clearbay/orders/internal/platform/jobs"
	"github.com/clearbay/orders/internal/platform/observability"
	"github.com/clearbay/orders/internal/platform/requestctx"
	fsrepo "github.com/clearbay/orders/internal/repositories/firestore"
	"github.com/clearbay/orders/internal/services"
)

// Container wires repositories, services, and the HTTP surface for runtime use.
type Container struct {
	Config config.Config
	Logger *zap.Logger

	Firestore *platformfs.Provider
	PubSub    *pubsub.Client

	Orders     services.OrderService
	Reconciler *services.Reconciler

	Handler http.Handler
}

// NewContainer constructs the runtime dependencies from configuration.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Container, error) {
	if logger == nil {
		return nil, errors.New("di: logger is required")
	}

	provider := platformfs.NewProvider(cfg.Firestore)

	orderRepo, err := fsrepo.NewOrderRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build order repository: %w", err)
	}
	userDir, err := fsrepo.NewUserDirectory(provider)
	if err != nil {
		return nil, fmt.Errorf("build user directory: %w", err)
	}
	catalogRepo, err := fsrepo.NewCatalogRepository(provider)
	if err != nil {
		return nil, fmt.Errorf("build catalog repository: %w", err)
	}
	inventory, err := fsrepo.NewInventoryGateway(provider)
	if err != nil {
		return nil, fmt.Errorf("build inventory gateway: %w", err)
	}

	eventLogger := zapEventLogger(logger)

	gateway, err := payments.NewStripeGateway(payments.StripeGatewayConfig{
		APIKey: cfg.Stripe.APIKey,
		Logger: eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build stripe gateway: %w", err)
	}

	pubsubClient, err := newPubSubClient(ctx, cfg.PubSub)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	topic := pubsubClient.Topic(cfg.PubSub.EventTopic)
	publisher, err := jobs.NewPubSubOrderEventPublisher(topic)
	if err != nil {
		return nil, fmt.Errorf("build event publisher: %w", err)
	}

	pricing, err := services.NewPricingEngine(services.PricingConfig{
		TaxRates:              cfg.Pricing.TaxRates,
		DefaultTaxRate:        cfg.Pricing.DefaultTaxRate,
		FreeShippingThreshold: cfg.Pricing.FreeShippingThreshold,
		StandardShippingRate:  cfg.Pricing.StandardShippingRate,
		ExpressShippingRate:   cfg.Pricing.ExpressShippingRate,
		ExpressZones:          cfg.Pricing.ExpressZones,
	})
	if err != nil {
		return nil, fmt.Errorf("build pricing engine: %w", err)
	}

	orderSvc, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:           orderRepo,
		Users:            userDir,
		Catalog:          catalogRepo,
		Inventory:        inventory,
		Payments:         gateway,
		Pricing:          pricing,
		Events:           publisher,
		MaxItemsPerOrder: cfg.Orders.MaxItemsPerOrder,
		Currency:         cfg.Stripe.Currency,
		Logger:           eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build order service: %w", err)
	}

	reconciler, err := services.NewReconciler(services.ReconcilerDeps{
		Orders:         orderRepo,
		Inventory:      inventory,
		Events:         publisher,
		OrderTimeout:   cfg.Orders.OrderTimeout,
		ReminderWindow: cfg.Orders.ReminderWindow,
		Logger:         eventLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("build reconciler: %w", err)
	}

	verifier, err := auth.NewJWTVerifier(cfg.Auth.SigningSecret, cfg.Auth.Issuer)
	if err != nil {
		return nil, fmt.Errorf("build token verifier: %w", err)
	}
	authn := auth.NewAuthenticator(verifier)

	rateLimit := handlers.RateLimit(cfg.RateLimits.DefaultPerMinute, cfg.RateLimits.AuthenticatedPerMinute, time.Minute)

	orderHandlers := handlers.NewOrderHandlers(authn, orderSvc,
		handlers.WithOrderRateLimit(rateLimit),
	)

	health := handlers.NewHealthHandlers(
		handlers.WithReadinessCheck("firestore", func(ctx context.Context) error {
			_, err := provider.Client(ctx)
			return err
		}),
		handlers.WithReadinessCheck("pubsub", func(ctx context.Context) error {
			ok, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("topic %s does not exist", cfg.PubSub.EventTopic)
			}
			return nil
		}),
	)

	router := handlers.NewRouter(
		handlers.WithMiddlewares(
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(cfg.Firestore.ProjectID),
			observability.RequestLoggerMiddleware(cfg.Firestore.ProjectID),
			observability.RecoveryMiddleware(logger),
		),
		handlers.WithHealthHandlers(health),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithMeRoutes(orderHandlers.MeRoutes),
	)

	return &Container{
		Config:     cfg,
		Logger:     logger,
		Firestore:  provider,
		PubSub:     pubsubClient,
		Orders:     orderSvc,
		Reconciler: reconciler,
		Handler:    router,
	}, nil
}

// Close releases clients held by the container.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	if c.PubSub != nil {
		if err := c.PubSub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pubsub client: %w", err))
		}
	}
	if c.Firestore != nil {
		if err := c.Firestore.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close firestore provider: %w", err))
		}
	}
	return errors.Join(errs...)
}

func newPubSubClient(ctx context.Context, cfg config.PubSubConfig) (*pubsub.Client, error) {
	if cfg.EmulatorHost != "" {
		return pubsub.NewClient(ctx, cfg.ProjectID,
			option.WithEndpoint(cfg.EmulatorHost),
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	return pubsub.NewClient(ctx, cfg.ProjectID)
}

// zapEventLogger adapts zap to the map-based event logger the services take.
// It prefers the request-scoped logger on ctx so service events carry the
// request id and trace correlation fields; fallback covers background work
// like reconciler sweeps, which run outside any request.
func zapEventLogger(fallback *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}
		zapFields := make([]zap.Field, 0, len(fields))
		for key, value := range fields {
			zapFields = append(zapFields, zap.Any(key, value))
		}
		logger.Info(event, zapFields...)
	}
}
