package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/catcoverage/internal/annotation"
	"github.com/starford/catcoverage/internal/catalogue"
	"github.com/starford/catcoverage/internal/report"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Archive backends.
const (
	BackendFS = "fs"
	BackendS3 = "s3"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Workdir   WorkdirConfig     `yaml:"workdir"`
	Archive   ArchiveConfig     `yaml:"archive"`
	Catalogue CatalogueConfig   `yaml:"catalogue"`
	Sizes     SizesConfig       `yaml:"sizes"`
	Policy    PolicyConfig      `yaml:"policy"`
	Report    ReportConfig      `yaml:"report"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Workdir, &c.Archive, &c.Catalogue, &c.Sizes, &c.Policy, &c.Report, &c.Auth,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// WorkdirConfig locates the directory holding inputs, outputs and caches.
type WorkdirConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the workdir configuration.
func (c *WorkdirConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// ArchiveConfig selects and configures the archive backend.
type ArchiveConfig struct {
	Backend         string   `yaml:"backend"`
	Root            string   `yaml:"root"`
	Mount           string   `yaml:"mount"`
	CollectionDepth int      `yaml:"collection_depth"`
	S3              S3Config `yaml:"s3"`
}

// Validate validates the archive configuration.
func (c *ArchiveConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Backend, validation.Required, validation.In(BackendFS, BackendS3)),
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.CollectionDepth, validation.Required, validation.Min(1)),
		validation.Field(&c.Mount, validation.When(c.Backend == BackendFS, validation.Required)),
	); err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	if c.Backend == BackendS3 {
		return c.S3.Validate()
	}
	return nil
}

// S3Config holds object-store settings for the s3 backend.
type S3Config struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Bucket          string `yaml:"bucket"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// Validate validates the S3 configuration.
func (c *S3Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Bucket, validation.Required),
	); err != nil {
		return fmt.Errorf("archive.s3: %w", err)
	}
	return nil
}

// CatalogueConfig configures the catalogue client and its snapshot cache.
type CatalogueConfig struct {
	URL      string        `yaml:"url"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Validate validates the catalogue configuration.
func (c *CatalogueConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required),
		validation.Field(&c.CacheTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	)
}

// SizesConfig configures the size and listing cache.
type SizesConfig struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	MemoryEntries   int           `yaml:"memory_entries"`
	PrefetchWorkers int           `yaml:"prefetch_workers"`
}

// Validate validates the sizes configuration.
func (c *SizesConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.CacheTTL, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MemoryEntries, validation.Required, validation.Min(1)),
		validation.Field(&c.PrefetchWorkers, validation.Required, validation.Min(1), validation.Max(256)),
	)
}

// PolicyConfig holds the classification and reporting policy.
type PolicyConfig struct {
	ReadmeMaxFiles int64    `yaml:"readme_max_files"`
	ReadmeMaxBytes int64    `yaml:"readme_max_bytes"`
	OKAnnotations  []string `yaml:"ok_annotations"`
}

// Validate validates the policy configuration.
func (c *PolicyConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReadmeMaxFiles, validation.Min(int64(0))),
		validation.Field(&c.ReadmeMaxBytes, validation.Min(int64(0))),
		validation.Field(&c.OKAnnotations, validation.Required, validation.Each(validation.Required)),
	)
}

// OK returns the ok annotations as a set.
func (c *PolicyConfig) OK() annotation.Set {
	s := make(annotation.Set, len(c.OKAnnotations))
	for _, a := range c.OKAnnotations {
		s[annotation.Annotation(a)] = struct{}{}
	}
	return s
}

// ReportConfig controls report output.
//
// StrictIntegrity turns an annotation set with overlapping entries into an
// error instead of a warning.
type ReportConfig struct {
	StrictIntegrity bool    `yaml:"strict_integrity"`
	MaxRows         int     `yaml:"max_rows"`
	MinPercent      float64 `yaml:"min_percent"`
	NoColor         bool    `yaml:"no_color"`
}

// Validate validates the report configuration.
func (c *ReportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxRows, validation.Required, validation.Min(1)),
		validation.Field(&c.MinPercent, validation.Min(0.0), validation.Max(100.0)),
	)
}

// AuthConfig holds authentication configuration for the HTTP API.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	ok := make([]string, len(annotation.DefaultOK))
	for i, a := range annotation.DefaultOK {
		ok[i] = string(a)
	}
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Workdir: WorkdirConfig{
			Path: ".",
		},
		Archive: ArchiveConfig{
			Backend:         BackendFS,
			Root:            "/",
			Mount:           "/",
			CollectionDepth: 2,
		},
		Catalogue: CatalogueConfig{
			URL:      catalogue.DefaultURL,
			CacheTTL: catalogue.DefaultTTL,
			Timeout:  time.Minute,
		},
		Sizes: SizesConfig{
			CacheTTL:        24 * time.Hour,
			MemoryEntries:   100000,
			PrefetchWorkers: 8,
		},
		Policy: PolicyConfig{
			ReadmeMaxFiles: 4,
			ReadmeMaxBytes: 10000,
			OKAnnotations:  ok,
		},
		Report: ReportConfig{
			MaxRows:    report.DefaultMaxRows,
			MinPercent: report.DefaultMinPercent,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
