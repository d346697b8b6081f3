package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
server:
  port: 9090
database:
  host: db.local
  name: agenda
  user: agenda
backend:
  driver: postgres
jwt:
  secret: file-secret
  issuer: https://auth.example.com
outbox:
  batch_size: 25
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_AppliesDefaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Outbox.PollInterval)
	assert.Equal(t, time.Minute, cfg.Cache.DirectoryTTL)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile_EnvironmentOverrides(t *testing.T) {
	t.Setenv("AGENDA_JWT_SECRET", "env-secret")
	t.Setenv("AGENDA_DB_PORT", "6543")
	t.Setenv("AGENDA_DB_PASSWORD", "s3cret")

	cfg, err := LoadFile(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "env-secret", cfg.JWT.Secret)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Contains(t, cfg.Database.DSN(), "password=s3cret")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.JWT.Secret = "" },
			wantErr: "jwt.secret",
		},
		{
			name: "postgrest without url",
			mutate: func(c *Config) {
				c.Backend.Driver = DriverPostgREST
				c.Backend.APIKey = "anon"
			},
			wantErr: "backend.url",
		},
		{
			name:    "unknown driver",
			mutate:  func(c *Config) { c.Backend.Driver = "mongo" },
			wantErr: "unknown backend driver",
		},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Redis.Enabled = true },
			wantErr: "redis.url",
		},
		{
			name:   "valid",
			mutate: func(c *Config) {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{Host: "localhost", Name: "agenda"},
				Backend:  BackendConfig{Driver: DriverPostgres},
				JWT:      JWTConfig{Secret: "secret"},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
