package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/client/services"
	"github.com/dmitrijs2005/geosnap/internal/imaging"
)

const dbFileName = "geosnap.db"

// Config holds runtime settings for the geosnap CLI.
//
// Auth, token and revoke endpoints left empty are derived from BackendURL
// once every source has been applied.
type Config struct {
	BackendURL string `env:"GEOSNAP_BACKEND_URL"`
	AuthURL    string `env:"GEOSNAP_AUTH_URL"`
	TokenURL   string `env:"GEOSNAP_TOKEN_URL"`
	RevokeURL  string `env:"GEOSNAP_REVOKE_URL"`

	ClientID    string   `env:"GEOSNAP_CLIENT_ID"`
	RedirectURI string   `env:"GEOSNAP_REDIRECT_URI"`
	Scopes      []string `env:"GEOSNAP_SCOPES" env-separator:" "`

	StorageUploadURL string `env:"GEOSNAP_STORAGE_UPLOAD_URL"`
	DataDir          string `env:"GEOSNAP_DATA_DIR"`

	RequestTimeout      time.Duration `env:"GEOSNAP_REQUEST_TIMEOUT"`
	RefreshLeadWindow   time.Duration `env:"GEOSNAP_REFRESH_LEAD_WINDOW"`
	OnlineCheckInterval time.Duration `env:"GEOSNAP_ONLINE_CHECK_INTERVAL"`

	MaxUploadWorkers int           `env:"GEOSNAP_MAX_UPLOAD_WORKERS"`
	MaxJobRetries    int           `env:"GEOSNAP_MAX_JOB_RETRIES"`
	StepRetries      int           `env:"GEOSNAP_STEP_RETRIES"`
	StepRetryBackoff time.Duration `env:"GEOSNAP_STEP_RETRY_BACKOFF"`
	DiscardOrphans   bool          `env:"GEOSNAP_DISCARD_ORPHANS"`

	Compression Compression

	LogLevel string `env:"GEOSNAP_LOG_LEVEL"`
}

// Compression mirrors imaging.Options for the config sources.
type Compression struct {
	TargetBytes  int     `json:"target_bytes" env:"GEOSNAP_COMPRESSION_TARGET_BYTES"`
	QualityStart float64 `json:"quality_start" env:"GEOSNAP_COMPRESSION_QUALITY_START"`
	QualityFloor float64 `json:"quality_floor" env:"GEOSNAP_COMPRESSION_QUALITY_FLOOR"`
	QualityStep  float64 `json:"quality_step" env:"GEOSNAP_COMPRESSION_QUALITY_STEP"`
	MaxDimension int     `json:"max_dimension" env:"GEOSNAP_COMPRESSION_MAX_DIMENSION"`
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.BackendURL = "http://127.0.0.1:8080"
	c.ClientID = "geosnap-cli"
	c.RedirectURI = "geosnap://oauth-callback"
	c.Scopes = []string{"openid", "profile", "photos"}
	c.StorageUploadURL = "https://upload.imagekit.io/api/v1/files/upload"
	c.DataDir = ".geosnap"

	c.RequestTimeout = 30 * time.Second
	c.RefreshLeadWindow = 5 * time.Minute
	c.OnlineCheckInterval = 5 * time.Second

	c.MaxUploadWorkers = 3
	c.MaxJobRetries = 3
	c.StepRetries = 2
	c.StepRetryBackoff = 500 * time.Millisecond

	d := imaging.DefaultOptions()
	c.Compression = Compression{
		TargetBytes:  d.TargetBytes,
		QualityStart: d.QualityStart,
		QualityFloor: d.QualityFloor,
		QualityStep:  d.QualityStep,
		MaxDimension: d.MaxDimension,
	}

	c.LogLevel = "info"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present), the environment and command-line flags. Later sources
// take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	cfg.deriveEndpoints()
	return cfg
}

func (c *Config) deriveEndpoints() {
	base := strings.TrimRight(c.BackendURL, "/")
	if c.AuthURL == "" {
		c.AuthURL = base + "/oauth/authorize"
	}
	if c.TokenURL == "" {
		c.TokenURL = base + "/oauth/token"
	}
	if c.RevokeURL == "" {
		c.RevokeURL = base + "/oauth/revoke"
	}
}

// DBPath is the local database file inside DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, dbFileName)
}

func (c *Config) OAuth() services.OAuthConfig {
	return services.OAuthConfig{
		ClientID:    c.ClientID,
		RedirectURI: c.RedirectURI,
		AuthURL:     c.AuthURL,
		TokenURL:    c.TokenURL,
		RevokeURL:   c.RevokeURL,
		Scopes:      c.Scopes,
	}
}

func (c *Config) UploadOptions() services.UploadOptions {
	return services.UploadOptions{
		Compression: imaging.Options{
			TargetBytes:  c.Compression.TargetBytes,
			QualityStart: c.Compression.QualityStart,
			QualityFloor: c.Compression.QualityFloor,
			QualityStep:  c.Compression.QualityStep,
			MaxDimension: c.Compression.MaxDimension,
		},
		StepRetries:    c.StepRetries,
		StepBackoff:    c.StepRetryBackoff,
		DiscardOrphans: c.DiscardOrphans,
	}
}

func (c *Config) QueueOptions() services.QueueOptions {
	return services.QueueOptions{
		MaxRetries: c.MaxJobRetries,
		Workers:    c.MaxUploadWorkers,
	}
}
