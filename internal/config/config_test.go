package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"CHRYSALIS_DB", "CHRYSALIS_BIND", "CHRYSALIS_PORT", "CHRYSALIS_LOG_LEVEL", "CHRYSALIS_ENV", "CHRYSALIS_OWNER", "OLLAMA_URL"} {
		t.Setenv(k, "")
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:37778", cfg.ListenAddr())
	assert.Equal(t, "http://127.0.0.1:37778", cfg.BaseURL())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, `
server:
  port: 9000
detect:
  micro_intensity: 0.8
orchestrator:
  auto_confirm: false
embedding:
  provider: tfidf
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	want := Default()
	want.Server.Port = 9000
	want.Detect.MicroIntensity = 0.8
	want.Orchestrator.AutoConfirm = false
	want.Embedding.Provider = "tfidf"
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CHRYSALIS_DB", "/tmp/c.db")
	t.Setenv("CHRYSALIS_PORT", "4000")
	t.Setenv("CHRYSALIS_LOG_LEVEL", "debug")
	t.Setenv("OLLAMA_URL", "http://ollama:11434")
	t.Setenv("CHRYSALIS_OWNER", "ana")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/c.db", cfg.Database.Path)
	assert.Equal(t, 4000, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "http://ollama:11434", cfg.Embedding.OllamaURL)
	assert.Equal(t, "ana", cfg.Hooks.Owner)
}

func TestEnvBadPort(t *testing.T) {
	t.Setenv("CHRYSALIS_PORT", "eighty")
	_, err := Load("")
	assert.ErrorContains(t, err, "CHRYSALIS_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"port", func(c *Config) { c.Server.Port = 0 }, "Port"},
		{"level", func(c *Config) { c.Log.Level = "loud" }, "Level"},
		{"provider", func(c *Config) { c.Embedding.Provider = "openai" }, "Provider"},
		{"micro", func(c *Config) { c.Detect.MicroIntensity = 0 }, "micro_intensity"},
		{"evolution", func(c *Config) { c.Detect.EvolutionDelta = 1.5 }, "evolution_delta"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}

func TestLoadBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "server: [unclosed")
	_, err := Load(path)
	assert.ErrorContains(t, err, "parse config")
}

func TestWatchReloads(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, "detect:\n  micro_intensity: 0.7\n")

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Config, 4)
	done, err := Watch(ctx, path, zaptest.NewLogger(t), func(c Config) { got <- c })
	require.NoError(t, err)
	defer func() {
		cancel()
		<-done
	}()

	// Invalid content is ignored.
	writeFile(t, path, "detect:\n  micro_intensity: 2\n")
	time.Sleep(2 * debounceDelay)
	writeFile(t, path, "detect:\n  micro_intensity: 0.9\n")

	select {
	case c := <-got:
		assert.Equal(t, 0.9, c.Detect.MicroIntensity)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload observed")
	}
}
