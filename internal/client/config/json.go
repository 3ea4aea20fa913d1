package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/flagx"
	"github.com/dmitrijs2005/geosnap/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations use
// timex.Duration so they may be written as "30s" or as integer nanoseconds.
// Pointer fields distinguish "absent" from a zero value.
type JsonConfig struct {
	BackendURL       *string  `json:"backend_url"`
	AuthURL          *string  `json:"auth_url"`
	TokenURL         *string  `json:"token_url"`
	RevokeURL        *string  `json:"revoke_url"`
	ClientID         *string  `json:"client_id"`
	RedirectURI      *string  `json:"redirect_uri"`
	Scopes           []string `json:"scopes"`
	StorageUploadURL *string  `json:"storage_upload_url"`
	DataDir          *string  `json:"data_dir"`

	RequestTimeout      *timex.Duration `json:"request_timeout"`
	RefreshLeadWindow   *timex.Duration `json:"refresh_lead_window"`
	OnlineCheckInterval *timex.Duration `json:"online_check_interval"`

	MaxUploadWorkers *int            `json:"max_upload_workers"`
	MaxJobRetries    *int            `json:"max_job_retries"`
	StepRetries      *int            `json:"step_retries"`
	StepRetryBackoff *timex.Duration `json:"step_retry_backoff"`
	DiscardOrphans   *bool           `json:"discard_orphans"`

	Compression *Compression `json:"compression"`

	LogLevel *string `json:"log_level"`
}

// parseJson overlays cfg with the JSON file named by -c/-config or
// $GEOSNAP_CONFIG. Without one it does nothing. Read and decode errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	// Compression keys merge into the current values.
	compression := cfg.Compression
	jc := JsonConfig{Compression: &compression}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	jc.apply(cfg)
}

func (jc *JsonConfig) apply(cfg *Config) {
	setString(&cfg.BackendURL, jc.BackendURL)
	setString(&cfg.AuthURL, jc.AuthURL)
	setString(&cfg.TokenURL, jc.TokenURL)
	setString(&cfg.RevokeURL, jc.RevokeURL)
	setString(&cfg.ClientID, jc.ClientID)
	setString(&cfg.RedirectURI, jc.RedirectURI)
	setString(&cfg.StorageUploadURL, jc.StorageUploadURL)
	setString(&cfg.DataDir, jc.DataDir)
	setString(&cfg.LogLevel, jc.LogLevel)

	if jc.Scopes != nil {
		cfg.Scopes = jc.Scopes
	}

	setDuration(&cfg.RequestTimeout, jc.RequestTimeout)
	setDuration(&cfg.RefreshLeadWindow, jc.RefreshLeadWindow)
	setDuration(&cfg.OnlineCheckInterval, jc.OnlineCheckInterval)
	setDuration(&cfg.StepRetryBackoff, jc.StepRetryBackoff)

	setInt(&cfg.MaxUploadWorkers, jc.MaxUploadWorkers)
	setInt(&cfg.MaxJobRetries, jc.MaxJobRetries)
	setInt(&cfg.StepRetries, jc.StepRetries)

	if jc.DiscardOrphans != nil {
		cfg.DiscardOrphans = *jc.DiscardOrphans
	}
	if jc.Compression != nil {
		cfg.Compression = *jc.Compression
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *timex.Duration) {
	if v != nil {
		*dst = v.Duration
	}
}
