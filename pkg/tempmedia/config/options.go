package config

import (
	"fmt"
	"time"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithMemoryStorage configures in-memory blob storage (for testing)
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageBackend = StorageBackendConfig{
			Type:   "memory",
			Config: map[string]interface{}{},
		}
		return nil
	}
}

// WithFilesystemStorage configures filesystem blob storage
func WithFilesystemStorage(baseDir, urlPrefix string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}

		cfg := map[string]interface{}{
			"base_dir": baseDir,
		}
		if urlPrefix != "" {
			cfg["url_prefix"] = urlPrefix
		}

		c.StorageBackend = StorageBackendConfig{Type: "fs", Config: cfg}
		return nil
	}
}

// WithS3Storage configures S3 blob storage
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}

		c.StorageBackend = StorageBackendConfig{
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		}
		return nil
	}
}

// WithS3Credentials sets AWS credentials for S3 storage
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		if c.StorageBackend.Type != "s3" {
			return fmt.Errorf("S3 credentials require an S3 storage backend")
		}
		c.StorageBackend.Config["access_key_id"] = accessKeyID
		c.StorageBackend.Config["secret_access_key"] = secretAccessKey
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, useSSL, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		if c.StorageBackend.Type != "s3" {
			return fmt.Errorf("S3 endpoint requires an S3 storage backend")
		}
		c.StorageBackend.Config["endpoint"] = endpoint
		c.StorageBackend.Config["use_ssl"] = useSSL
		c.StorageBackend.Config["use_path_style"] = usePathStyle
		return nil
	}
}

// WithTTLHours sets the default time-to-live for uploads
func WithTTLHours(hours int) Option {
	return func(c *ServerConfig) error {
		if hours <= 0 {
			return fmt.Errorf("ttl hours must be positive, got: %d", hours)
		}
		c.DefaultTTLHours = hours
		return nil
	}
}

// WithMaxFileSize sets the maximum upload size in bytes
func WithMaxFileSize(bytes int64) Option {
	return func(c *ServerConfig) error {
		if bytes <= 0 {
			return fmt.Errorf("max file size must be positive, got: %d", bytes)
		}
		c.MaxFileSize = bytes
		return nil
	}
}

// WithAllowedMimeTypes sets the upload MIME type allowlist.
// An empty list allows every type.
func WithAllowedMimeTypes(mimeTypes []string) Option {
	return func(c *ServerConfig) error {
		c.AllowedMimeTypes = mimeTypes
		return nil
	}
}

// WithTransferCollection sets the default collection for transferred media
func WithTransferCollection(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			return fmt.Errorf("transfer collection cannot be empty")
		}
		c.DefaultTransferCollection = name
		return nil
	}
}

// WithSessionValidation enables or disables session ownership checks
func WithSessionValidation(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.ValidateSession = enabled
		return nil
	}
}

// WithConversions enables or disables preview URL generation
func WithConversions(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.GenerateConversions = enabled
		return nil
	}
}

// WithEventDispatch enables or disables lifecycle event dispatch
func WithEventDispatch(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.DispatchEvents = enabled
		return nil
	}
}

// WithAutoCleanup configures the in-process background sweeper
func WithAutoCleanup(enabled bool, interval time.Duration) Option {
	return func(c *ServerConfig) error {
		if enabled && interval <= 0 {
			return fmt.Errorf("cleanup interval must be positive, got: %s", interval)
		}
		c.EnableAutoCleanup = enabled
		if interval > 0 {
			c.CleanupInterval = interval
		}
		return nil
	}
}

// WithCleanupTimeout sets the per-sweep timeout
func WithCleanupTimeout(timeout time.Duration) Option {
	return func(c *ServerConfig) error {
		if timeout <= 0 {
			return fmt.Errorf("cleanup timeout must be positive, got: %s", timeout)
		}
		c.CleanupTimeout = timeout
		return nil
	}
}

// WithRateLimit sets the API request throttle
func WithRateLimit(requests int, window time.Duration) Option {
	return func(c *ServerConfig) error {
		if requests <= 0 {
			return fmt.Errorf("rate limit requests must be positive, got: %d", requests)
		}
		if window <= 0 {
			return fmt.Errorf("rate limit window must be positive, got: %s", window)
		}
		c.RateLimitRequests = requests
		c.RateLimitWindow = window
		return nil
	}
}

// WithDefaults is a convenience option that resets the configuration to
// library defaults before more specific options apply.
func WithDefaults() Option {
	return func(c *ServerConfig) error {
		*c = defaults()
		return nil
	}
}
