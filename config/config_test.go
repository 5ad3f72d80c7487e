package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "partsdb", cfg.App.Name)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "archive", cfg.OpenDB.Source)
	assert.Equal(t, DefaultArchiveURL, cfg.OpenDB.ArchiveURL)
	assert.Equal(t, 60*time.Second, cfg.OpenDB.Timeout)
	assert.Equal(t, 3, cfg.OpenDB.MaxRetries)
	assert.Equal(t, 100, cfg.OpenDB.MaxIssues)
	assert.Equal(t, "memory", cfg.Lock.Backend)
	assert.Equal(t, "partsdb", cfg.Telemetry.ServiceName)
	assert.Equal(t, 60*time.Second, cfg.Telemetry.MetricsInterval)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partsdb.toml")
	content := `
[database]
driver = "sqlite"
path = "test.sqlite"

[opendb]
source = "dir"
local_path = "/data/open-db"
timeout = "5s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("PARTSDB_OPENDB_MAX_RETRIES", "7")
	t.Setenv("PARTSDB_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "test.sqlite", cfg.Database.Path)
	assert.Equal(t, "dir", cfg.OpenDB.Source)
	assert.Equal(t, "/data/open-db", cfg.OpenDB.LocalPath)
	assert.Equal(t, 5*time.Second, cfg.OpenDB.Timeout)
	assert.Equal(t, 7, cfg.OpenDB.MaxRetries)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadKeepsExplicitZeroes(t *testing.T) {
	testCases := []struct {
		name   string
		file   string
		env    map[string]string
		assert func(t *testing.T, cfg *Config)
	}{
		{
			name: "retries disabled in file",
			file: "[opendb]\nmax_retries = 0\nmax_issues = 0\n",
			assert: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0, cfg.OpenDB.MaxRetries)
				assert.Equal(t, 0, cfg.OpenDB.MaxIssues)
			},
		},
		{
			name: "retries disabled from env",
			env:  map[string]string{"PARTSDB_OPENDB_MAX_RETRIES": "0"},
			assert: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 0, cfg.OpenDB.MaxRetries)
				assert.Equal(t, 100, cfg.OpenDB.MaxIssues)
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "partsdb.toml")
			require.NoError(t, os.WriteFile(path, []byte(tc.file), 0o600))
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load(path)

			require.NoError(t, err)
			tc.assert(t, cfg)
		})
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(cfg *Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(cfg *Config) {},
		},
		{
			name:    "unknown driver",
			mutate:  func(cfg *Config) { cfg.Database.Driver = "mysql" },
			wantErr: "unsupported database driver",
		},
		{
			name:    "unknown source",
			mutate:  func(cfg *Config) { cfg.OpenDB.Source = "git" },
			wantErr: "unsupported opendb source",
		},
		{
			name:    "archive url without scheme",
			mutate:  func(cfg *Config) { cfg.OpenDB.ArchiveURL = "codeload.github.com/x" },
			wantErr: "invalid opendb archive url",
		},
		{
			name:    "unknown lock backend",
			mutate:  func(cfg *Config) { cfg.Lock.Backend = "etcd" },
			wantErr: "unsupported lock backend",
		},
		{
			name: "telemetry without endpoint",
			mutate: func(cfg *Config) {
				cfg.Telemetry.Enabled = true
				cfg.Telemetry.CollectorEndpoint = ""
			},
			wantErr: "collector endpoint",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &Config{}
			applyDefaults(cfg)
			tc.mutate(cfg)

			err := cfg.validate()

			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestDatabaseURLs(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5433, User: "parts", Password: "p@ss", DBName: "catalog", SSLMode: "disable"}

	assert.Equal(t, "host=db port=5433 user=parts password=p@ss dbname=catalog sslmode=disable", db.DSN())
	assert.Equal(t, "postgres://parts:p%40ss@db:5433/catalog?sslmode=disable", db.URL())
}
