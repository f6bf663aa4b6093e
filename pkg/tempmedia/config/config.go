package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/medox/temp-media/pkg/tempmedia"
	repomemory "github.com/medox/temp-media/pkg/tempmedia/repo/memory"
	repopg "github.com/medox/temp-media/pkg/tempmedia/repo/postgres"
	fsstorage "github.com/medox/temp-media/pkg/tempmedia/storage/fs"
	memorystorage "github.com/medox/temp-media/pkg/tempmedia/storage/memory"
	s3storage "github.com/medox/temp-media/pkg/tempmedia/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:         "8080",
		Environment:  "development",
		DatabaseType: "memory",
		DBSchema:     "tempmedia",
		StorageBackend: StorageBackendConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		},
		DefaultTTLHours:           tempmedia.DefaultTTLHours,
		MaxFileSize:               tempmedia.DefaultMaxFileSize,
		AllowedMimeTypes:          []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		DefaultTransferCollection: tempmedia.DefaultTransferCollection,
		ValidateSession:           true,
		DispatchEvents:            true,
		CleanupInterval:           time.Hour,
		CleanupTimeout:            tempmedia.DefaultSweepTimeout,
		CleanupNoOverlap:          true,
		RateLimitRequests:         60,
		RateLimitWindow:           time.Minute,
	}
}

// ServerConfig represents server configuration for the temp media service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"
	DBSchema     string // Postgres schema to use (default: tempmedia)

	// Storage configuration
	StorageBackend StorageBackendConfig

	// Lifecycle options
	DefaultTTLHours  int
	MaxFileSize      int64
	AllowedMimeTypes []string

	// Transfer options
	DefaultTransferCollection string
	ValidateSession           bool
	GenerateConversions       bool

	// Event options
	DispatchEvents bool

	// Cleanup options
	EnableAutoCleanup bool
	CleanupInterval   time.Duration
	CleanupTimeout    time.Duration
	CleanupNoOverlap  bool

	// API options
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// StorageBackendConfig represents configuration for a storage backend
type StorageBackendConfig struct {
	Type   string // "memory", "fs", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	switch c.StorageBackend.Type {
	case "memory", "fs", "s3":
	default:
		return fmt.Errorf("unsupported storage backend type: %s", c.StorageBackend.Type)
	}

	if c.DefaultTTLHours <= 0 {
		return errors.New("default_ttl_hours must be positive")
	}

	if c.MaxFileSize <= 0 {
		return errors.New("max_file_size must be positive")
	}

	return nil
}

// BuildService creates a lifecycle Service instance from the server configuration
func (c *ServerConfig) BuildService() (tempmedia.Service, error) {
	repo, err := c.BuildRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to build repository: %w", err)
	}

	store, err := c.BuildStorageBackend()
	if err != nil {
		return nil, fmt.Errorf("failed to build storage backend: %w", err)
	}

	options := []tempmedia.Option{
		tempmedia.WithRepository(repo),
		tempmedia.WithBlobStore(store),
		tempmedia.WithDefaultTTLHours(c.DefaultTTLHours),
		tempmedia.WithMaxFileSize(c.MaxFileSize),
		tempmedia.WithAllowedMimeTypes(c.AllowedMimeTypes),
		tempmedia.WithConversions(c.GenerateConversions),
	}

	if c.DispatchEvents {
		options = append(options, tempmedia.WithEventSink(tempmedia.NewLoggingEventSink(nil)))
	}

	return tempmedia.New(options...)
}

// BuildTransferService creates a TransferService wired to the same repository
// and blob store as the given lifecycle service.
func (c *ServerConfig) BuildTransferService(lifecycle tempmedia.Service, repo tempmedia.Repository, store tempmedia.BlobStore) (tempmedia.TransferService, error) {
	options := []tempmedia.TransferOption{
		tempmedia.WithDefaultCollection(c.DefaultTransferCollection),
	}

	if c.DispatchEvents {
		options = append(options, tempmedia.WithTransferEventSink(tempmedia.NewLoggingEventSink(nil)))
	}

	return tempmedia.NewTransferService(lifecycle, repo, store, options...)
}

// BuildSweeper creates a Sweeper over the given services.
func (c *ServerConfig) BuildSweeper(lifecycle tempmedia.Service, transfers tempmedia.TransferService, repo tempmedia.Repository) (*tempmedia.Sweeper, error) {
	return tempmedia.NewSweeper(lifecycle, transfers, repo,
		tempmedia.WithSweepTimeout(c.CleanupTimeout),
		tempmedia.WithOverlapPrevention(c.CleanupNoOverlap),
	)
}

// BuildRepository creates a Repository based on the configuration
func (c *ServerConfig) BuildRepository() (tempmedia.Repository, error) {
	switch c.DatabaseType {
	case "memory":
		return repomemory.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		schema := c.DBSchema
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if schema == "" {
				return nil
			}
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		return repopg.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// PingPostgres verifies connectivity to Postgres and optionally sets search_path for the session.
// It fails if the schema (when provided) does not exist.
func PingPostgres(databaseURL, schema string) error {
	if databaseURL == "" {
		return errors.New("database_url is required")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to create pgx pool: %w", err)
	}
	defer pool.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// BuildStorageBackend creates a BlobStore based on the backend configuration
func (c *ServerConfig) BuildStorageBackend() (tempmedia.BlobStore, error) {
	backend := c.StorageBackend
	switch backend.Type {
	case "memory":
		return memorystorage.New(), nil

	case "fs":
		fsConfig := fsstorage.Config{
			BaseDir:   getString(backend.Config, "base_dir", "./data/temp-media"),
			URLPrefix: getString(backend.Config, "url_prefix", ""),
		}
		return fsstorage.New(fsConfig)

	case "s3":
		s3Config := s3storage.Config{
			Region:                 getString(backend.Config, "region", "us-east-1"),
			Bucket:                 getString(backend.Config, "bucket", ""),
			AccessKeyID:            getString(backend.Config, "access_key_id", ""),
			SecretAccessKey:        getString(backend.Config, "secret_access_key", ""),
			Endpoint:               getString(backend.Config, "endpoint", ""),
			UseSSL:                 getBool(backend.Config, "use_ssl", true),
			UsePathStyle:           getBool(backend.Config, "use_path_style", false),
			PresignDuration:        getInt(backend.Config, "presign_duration", 3600),
			EnableSSE:              getBool(backend.Config, "enable_sse", false),
			SSEAlgorithm:           getString(backend.Config, "sse_algorithm", "AES256"),
			SSEKMSKeyID:            getString(backend.Config, "sse_kms_key_id", ""),
			CreateBucketIfNotExist: getBool(backend.Config, "create_bucket_if_not_exist", false),
		}
		return s3storage.New(s3Config)

	default:
		return nil, fmt.Errorf("unsupported storage backend type: %s", backend.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}

func getInt(config map[string]interface{}, key string, defaultValue int) int {
	if value, exists := config[key]; exists {
		if i, ok := value.(int); ok {
			return i
		}
		if str, ok := value.(string); ok {
			if i, err := strconv.Atoi(str); err == nil {
				return i
			}
		}
		if f, ok := value.(float64); ok {
			return int(f)
		}
	}
	return defaultValue
}
