// Package config loads runtime configuration for the geosnap CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c / -config or $GEOSNAP_CONFIG.
//  3. GEOSNAP_* environment variables, read with cleanenv.
//  4. Command-line flags (see parseFlags).
//
// Auth, token and revoke URLs that are still empty afterwards are derived
// from the backend URL.
//
// # JSON schema
//
// Durations use timex.Duration, so "30s" and integer nanoseconds both work.
// Every key is optional:
//
//	{
//	  "backend_url": "https://api.example.com",
//	  "client_id": "geosnap-cli",
//	  "scopes": ["openid", "photos"],
//	  "data_dir": "/var/lib/geosnap",
//	  "request_timeout": "30s",
//	  "refresh_lead_window": "5m",
//	  "online_check_interval": "5s",
//	  "max_upload_workers": 3,
//	  "max_job_retries": 3,
//	  "step_retries": 2,
//	  "step_retry_backoff": "500ms",
//	  "discard_orphans": false,
//	  "compression": {"target_bytes": 1500000, "quality_start": 0.9,
//	                  "quality_floor": 0.4, "quality_step": 0.1, "max_dimension": 3000},
//	  "log_level": "info"
//	}
package config
