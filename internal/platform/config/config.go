package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

const (
	defaultEnvFile             = ".env"
	defaultPort                = "8080"
	defaultReadTimeout         = 15 * time.Second
	defaultWriteTimeout        = 30 * time.Second
	defaultIdleTimeout         = 120 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultSecurityEnvironment = "local"
	defaultStoreBackend        = StoreBackendMemory
	defaultFirestoreCollection = "studioSessions"
	defaultRedisAddr           = "localhost:6379"
	defaultRedisTTL            = 12 * time.Hour
	defaultRedisKeyPrefix      = "studio"
	defaultCatalogTimeout      = 20 * time.Second
	defaultCountry             = "IE"
	defaultLanguage            = "en"
	defaultSessionIdleTTL      = 30 * time.Minute
	defaultSessionSweep        = time.Minute
	defaultLifecycleTopic      = "studio-lifecycle-events"
)

// Store backends accepted by STUDIO_STORE_BACKEND.
const (
	StoreBackendMemory    = "memory"
	StoreBackendFirestore = "firestore"
	StoreBackendRedis     = "redis"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server    ServerConfig
	Firebase  FirebaseConfig
	Firestore FirestoreConfig
	Redis     RedisConfig
	Store     StoreConfig
	Catalog   CatalogConfig
	Studio    StudioConfig
	PubSub    PubSubConfig
	Security  SecurityConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings used to verify operator tokens.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string

	// TenantID restricts sign-in to the Identity Platform tenant of studio operators.
	TenantID     string
	CheckRevoked bool
}

// FirestoreConfig stores database parameters for the Firestore context store.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// RedisConfig stores connection parameters for the Redis context store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

// StoreConfig selects the persistence used for editing context records.
type StoreConfig struct {
	Backend string
}

// CatalogConfig points at the remote catalog, policy count and rating mapping services.
type CatalogConfig struct {
	BaseURL        string
	PolicyBaseURL  string
	MappingBaseURL string
	APIToken       string
	Timeout        time.Duration
}

// StudioConfig tunes editing session behaviour.
type StudioConfig struct {
	DefaultCountry  string
	DefaultLanguage string
	RegionsFile     string
	SessionIdleTTL  time.Duration
	SweepInterval   time.Duration
	AllowedRoles    []string
}

// PubSubConfig controls lifecycle event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID      string
	LifecycleTopic string
}

// SecurityConfig groups environment level security settings.
type SecurityConfig struct {
	Environment string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface. Names are redacted.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers that are safe to log.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Catalog.APIToken") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the effective key/value environment map after applying the same precedence
// rules as Load (dotenv < OS env < explicit env map).
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnvValues))
	for key, value := range dotEnvValues {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the studio configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "STUDIO_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "STUDIO_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STUDIO_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STUDIO_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STUDIO_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "STUDIO_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "STUDIO_FIREBASE_CREDENTIALS_FILE", ""),
			TenantID:        stringWithDefault(lookup, "STUDIO_FIREBASE_TENANT_ID", ""),
			CheckRevoked:    boolWithDefault(lookup, "STUDIO_FIREBASE_CHECK_REVOKED", true),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STUDIO_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STUDIO_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "STUDIO_FIRESTORE_COLLECTION", defaultFirestoreCollection),
		},
		Redis: RedisConfig{
			Addr:      stringWithDefault(lookup, "STUDIO_REDIS_ADDR", defaultRedisAddr),
			Password:  stringWithDefault(lookup, "STUDIO_REDIS_PASSWORD", ""),
			DB:        intWithDefault(lookup, "STUDIO_REDIS_DB", 0),
			TTL:       durationWithDefault(lookup, "STUDIO_REDIS_TTL", defaultRedisTTL),
			KeyPrefix: stringWithDefault(lookup, "STUDIO_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "STUDIO_STORE_BACKEND", defaultStoreBackend)),
		},
		Catalog: CatalogConfig{
			BaseURL:        stringWithDefault(lookup, "STUDIO_CATALOG_BASE_URL", ""),
			PolicyBaseURL:  stringWithDefault(lookup, "STUDIO_POLICY_BASE_URL", ""),
			MappingBaseURL: stringWithDefault(lookup, "STUDIO_MAPPING_BASE_URL", ""),
			APIToken:       stringWithDefault(lookup, "STUDIO_CATALOG_API_TOKEN", ""),
			Timeout:        durationWithDefault(lookup, "STUDIO_CATALOG_TIMEOUT", defaultCatalogTimeout),
		},
		Studio: StudioConfig{
			DefaultCountry:  strings.ToUpper(stringWithDefault(lookup, "STUDIO_DEFAULT_COUNTRY", defaultCountry)),
			DefaultLanguage: stringWithDefault(lookup, "STUDIO_DEFAULT_LANGUAGE", defaultLanguage),
			RegionsFile:     stringWithDefault(lookup, "STUDIO_REGIONS_FILE", ""),
			SessionIdleTTL:  durationWithDefault(lookup, "STUDIO_SESSION_IDLE_TTL", defaultSessionIdleTTL),
			SweepInterval:   durationWithDefault(lookup, "STUDIO_SESSION_SWEEP_INTERVAL", defaultSessionSweep),
			AllowedRoles:    csvWithDefault(lookup, "STUDIO_ALLOWED_ROLES"),
		},
		PubSub: PubSubConfig{
			ProjectID:      stringWithDefault(lookup, "STUDIO_PUBSUB_PROJECT_ID", ""),
			LifecycleTopic: stringWithDefault(lookup, "STUDIO_PUBSUB_LIFECYCLE_TOPIC", defaultLifecycleTopic),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(lookup, "STUDIO_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Catalog.PolicyBaseURL == "" {
		cfg.Catalog.PolicyBaseURL = cfg.Catalog.BaseURL
	}
	if cfg.Catalog.MappingBaseURL == "" {
		cfg.Catalog.MappingBaseURL = cfg.Catalog.BaseURL
	}
	if len(cfg.Studio.AllowedRoles) == 0 {
		cfg.Studio.AllowedRoles = []string{"staff", "admin"}
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Catalog.APIToken", &cfg.Catalog.APIToken},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Catalog.BaseURL == "" {
		missing = append(missing, "Catalog.BaseURL")
	}
	if cfg.Catalog.Timeout <= 0 {
		missing = append(missing, "Catalog.Timeout")
	}
	if len(cfg.Studio.DefaultCountry) != 2 {
		missing = append(missing, "Studio.DefaultCountry")
	}
	if cfg.Studio.SessionIdleTTL <= 0 {
		missing = append(missing, "Studio.SessionIdleTTL")
	}

	switch cfg.Store.Backend {
	case StoreBackendMemory:
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
		if strings.TrimSpace(cfg.Firestore.Collection) == "" {
			missing = append(missing, "Firestore.Collection")
		}
	case StoreBackendRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			missing = append(missing, "Redis.Addr")
		}
	default:
		missing = append(missing, "Store.Backend")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	seen := make(map[string]struct{}, len(required))
	var names []string
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if strings.TrimSpace(resolved[trimmed]) != "" {
			continue
		}
		names = append(names, trimmed)
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}
