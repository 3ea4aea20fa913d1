package config

import (
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	tests := []struct {
		expected    *Config
		name        string
		args        []string
		expectPanic bool
	}{
		{name: "Test1 OK", args: []string{"cmd", "-a", "http://127.0.0.1:9090", "-i", "10", "-w", "2", "-d", "/tmp/gs", "-discard-orphans"},
			expected: &Config{BackendURL: "http://127.0.0.1:9090", OnlineCheckInterval: 10 * time.Second, MaxUploadWorkers: 2, DataDir: "/tmp/gs", DiscardOrphans: true}},
		{name: "Test2 foreign flags ignored", args: []string{"cmd", "-c", "x.json", "-l", "debug", "-test.v"},
			expected: &Config{LogLevel: "debug"}},
		{name: "Test3 incorrect check interval", args: []string{"cmd", "-a", "http://127.0.0.1:9090", "-i", "abc"}, expectPanic: true, expected: &Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Args = tt.args

			config := &Config{}

			if !tt.expectPanic {
				require.NotPanics(t, func() { parseFlags(config) })
				assert.Empty(t, cmp.Diff(config, tt.expected))
			} else {
				require.Panics(t, func() { parseFlags(config) })
			}
		})
	}
}
