package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/geosnap/internal/flagx"
)

var ownFlags = []string{"-a", "-i", "-d", "-w", "-r", "-l", "-discard-orphans"}

// parseFlags populates selected Config fields from command-line flags.
//
//	-a string   backend base URL
//	-i int      online check interval in seconds
//	-d string   data directory
//	-w int      concurrent uploads during queue replay
//	-r int      failed replays before a queued upload is dropped
//	-l string   log level (debug, info, warn, error)
//	-discard-orphans  delete placeholder photos of abandoned uploads
//
// os.Args is filtered with flagx.FilterArgs first so flags owned by other
// stages do not fail parsing.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], ownFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.BackendURL, "a", cfg.BackendURL, "backend base URL")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.IntVar(&cfg.MaxUploadWorkers, "w", cfg.MaxUploadWorkers, "concurrent uploads during replay")
	fs.IntVar(&cfg.MaxJobRetries, "r", cfg.MaxJobRetries, "failed replays before a queued upload is dropped")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.BoolVar(&cfg.DiscardOrphans, "discard-orphans", cfg.DiscardOrphans, "delete placeholders of abandoned uploads")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
