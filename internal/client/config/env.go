package config

import (
	"github.com/ilyakaznacheev/cleanenv"
)

// parseEnv overlays cfg with GEOSNAP_* variables. Unset variables leave the
// current value alone. Malformed values panic, like the other stages.
func parseEnv(cfg *Config) {
	if err := cleanenv.ReadEnv(cfg); err != nil {
		panic(err)
	}
}
