package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	goredis "github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/hanko-field/product-studio/internal/platform/catalogapi"
	"github.com/hanko-field/product-studio/internal/platform/config"
	pfirestore "github.com/hanko-field/product-studio/internal/platform/firestore"
	"github.com/hanko-field/product-studio/internal/platform/jobs"
	"github.com/hanko-field/product-studio/internal/platform/regions"
	"github.com/hanko-field/product-studio/internal/repositories"
	firestoreRepo "github.com/hanko-field/product-studio/internal/repositories/firestore"
	"github.com/hanko-field/product-studio/internal/repositories/memory"
	redisRepo "github.com/hanko-field/product-studio/internal/repositories/redis"
	"github.com/hanko-field/product-studio/internal/services"
)

const meterName = "github.com/hanko-field/product-studio/internal/services"

// Container wires the context store, remote clients, and editing sessions for runtime use.
type Container struct {
	Config    config.Config
	Store     repositories.ContextStore
	Catalog   *catalogapi.CatalogClient
	Policies  *catalogapi.PolicyClient
	Mappings  *catalogapi.MappingClient
	Regions   *regions.Resolver
	Events    services.LifecycleEventPublisher
	Sessions  *services.SessionManager
	Readiness repositories.ReadinessRepository

	checks  []repositories.DependencyCheck
	closers []func(context.Context) error
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger     *zap.Logger
	httpClient catalogapi.HTTPClient
	store      repositories.ContextStore
	events     services.LifecycleEventPublisher
	clock      func() time.Time
}

// WithLogger routes service events to logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient overrides the client used for catalog, policy and mapping calls.
func WithHTTPClient(client catalogapi.HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithContextStore bypasses backend selection with a prepared store.
func WithContextStore(store repositories.ContextStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithLifecyclePublisher bypasses Pub/Sub with a prepared publisher.
func WithLifecyclePublisher(events services.LifecycleEventPublisher) Option {
	return func(o *options) {
		o.events = events
	}
}

// WithClock injects a custom clock.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// NewContainer constructs the runtime dependencies. Partially built resources are released when
// a later step fails.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (container *Container, err error) {
	o := options{logger: zap.NewNop(), clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.clock == nil {
		o.clock = time.Now
	}

	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if err := c.buildStore(ctx, cfg, o); err != nil {
		return nil, err
	}
	if err := c.buildClients(cfg, o); err != nil {
		return nil, err
	}
	if c.Regions, err = regions.Load(cfg.Studio.RegionsFile); err != nil {
		return nil, fmt.Errorf("build region resolver: %w", err)
	}
	if err := c.buildPublisher(ctx, cfg, o); err != nil {
		return nil, err
	}

	sessions, err := services.NewSessionManager(services.SessionManagerDeps{
		Store:          c.Store,
		Catalog:        c.Catalog,
		Policies:       c.Policies,
		Mappings:       c.Mappings,
		Regions:        c.Regions,
		Events:         c.Events,
		DefaultCountry: cfg.Studio.DefaultCountry,
		IdleTTL:        cfg.Studio.SessionIdleTTL,
		Meter:          otel.GetMeterProvider().Meter(meterName),
		Clock:          o.clock,
		Logger:         EventLogger(o.logger.Named("studio")),
	})
	if err != nil {
		return nil, fmt.Errorf("build session manager: %w", err)
	}
	c.Sessions = sessions
	c.closers = append(c.closers, func(context.Context) error {
		sessions.Shutdown()
		return nil
	})

	readiness, err := repositories.NewReadinessRepository(c.checks,
		repositories.WithReadinessClock(o.clock),
		repositories.WithBuildInfo("", cfg.Security.Environment),
	)
	if err != nil {
		return nil, fmt.Errorf("build readiness repository: %w", err)
	}
	c.Readiness = readiness
	return c, nil
}

// Close stops sessions and releases clients in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) buildStore(ctx context.Context, cfg config.Config, o options) error {
	if o.store != nil {
		c.Store = o.store
		c.addStoreCheck(o.store)
		return nil
	}

	switch cfg.Store.Backend {
	case "", config.StoreBackendMemory:
		store := memory.NewContextStore()
		c.Store = store
		c.checks = append(c.checks, repositories.DependencyCheck{Name: "contextStore", Check: store.Ping})
	case config.StoreBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		c.closers = append(c.closers, provider.Close)
		if _, err := provider.Client(ctx); err != nil {
			return fmt.Errorf("build firestore client: %w", err)
		}
		store, err := firestoreRepo.NewContextStore(provider, cfg.Firestore.Collection, o.clock)
		if err != nil {
			return fmt.Errorf("build firestore context store: %w", err)
		}
		c.Store = store
		collection := cfg.Firestore.Collection
		c.checks = append(c.checks, repositories.DependencyCheck{
			Name:  "contextStore",
			Check: func(ctx context.Context) error { return provider.Ping(ctx, collection) },
		})
	case config.StoreBackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		store, err := redisRepo.NewContextStore(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL)
		if err != nil {
			return fmt.Errorf("build redis context store: %w", err)
		}
		c.Store = store
		c.checks = append(c.checks, repositories.DependencyCheck{Name: "contextStore", Check: store.Ping})
	default:
		return fmt.Errorf("unsupported store backend %q", cfg.Store.Backend)
	}
	return nil
}

func (c *Container) addStoreCheck(store repositories.ContextStore) {
	pinger, ok := store.(interface{ Ping(context.Context) error })
	if !ok {
		return
	}
	c.checks = append(c.checks, repositories.DependencyCheck{Name: "contextStore", Check: pinger.Ping})
}

func (c *Container) buildClients(cfg config.Config, o options) error {
	client := o.httpClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Catalog.Timeout}
	}
	clientOpts := []catalogapi.Option{
		catalogapi.WithHTTPClient(client),
		catalogapi.WithToken(cfg.Catalog.APIToken),
	}

	var err error
	if c.Catalog, err = catalogapi.NewCatalogClient(cfg.Catalog.BaseURL, clientOpts...); err != nil {
		return fmt.Errorf("build catalog client: %w", err)
	}
	if c.Policies, err = catalogapi.NewPolicyClient(firstNonEmpty(cfg.Catalog.PolicyBaseURL, cfg.Catalog.BaseURL), clientOpts...); err != nil {
		return fmt.Errorf("build policy client: %w", err)
	}
	if c.Mappings, err = catalogapi.NewMappingClient(firstNonEmpty(cfg.Catalog.MappingBaseURL, cfg.Catalog.BaseURL), clientOpts...); err != nil {
		return fmt.Errorf("build mapping client: %w", err)
	}

	c.checks = append(c.checks,
		repositories.DependencyCheck{Name: "catalog", Check: c.Catalog.Ping},
		repositories.DependencyCheck{Name: "policies", Check: c.Policies.Ping},
	)
	return nil
}

func (c *Container) buildPublisher(ctx context.Context, cfg config.Config, o options) error {
	if o.events != nil {
		c.Events = o.events
		return nil
	}
	projectID := strings.TrimSpace(cfg.PubSub.ProjectID)
	topicID := strings.TrimSpace(cfg.PubSub.LifecycleTopic)
	if projectID == "" || topicID == "" {
		return nil
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return fmt.Errorf("build pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })

	topic := client.Topic(topicID)
	topic.EnableMessageOrdering = true
	c.closers = append(c.closers, func(context.Context) error {
		topic.Stop()
		return nil
	})

	publisher, err := jobs.NewPubSubLifecyclePublisher(topic)
	if err != nil {
		return fmt.Errorf("build lifecycle publisher: %w", err)
	}
	c.Events = publisher
	c.checks = append(c.checks, repositories.DependencyCheck{
		Name: "lifecycleTopic",
		Check: func(ctx context.Context) error {
			exists, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				return fmt.Errorf("topic %s not found", topicID)
			}
			return nil
		},
	})
	return nil
}

// EventLogger adapts a zap logger to the event logging hook used by services.
func EventLogger(logger *zap.Logger) func(ctx context.Context, event string, fields map[string]any) {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(_ context.Context, event string, fields map[string]any) {
		zFields := make([]zap.Field, 0, len(fields)+1)
		zFields = append(zFields, zap.String("event", event))
		for k, v := range fields {
			zFields = append(zFields, zap.Any(k, v))
		}
		logger.Debug("studio log", zFields...)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
