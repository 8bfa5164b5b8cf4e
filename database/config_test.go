/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package database

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/bunrepo/utils"
)

const sampleConfig = `
connection:
  type: postgres
  host: db.internal
  port: 5432
  username: app
  dbname: shop
  max_open_conns: 20
  slow_query_time: 500ms
migrate:
  enable_migrate_on_startup: true
log:
  level: debug
  format: json
  file:
    enabled: true
    dir: /var/log/shop
    max_age_days: 14
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := LoadConfig(writeFile(t, "db.yaml", sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.ConnectionConfig.Type)
	assert.Equal(t, "db.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, 20, cfg.ConnectionConfig.MaxOpenConns)
	assert.Equal(t, 500*time.Millisecond, cfg.ConnectionConfig.SlowQueryTime)
	// untouched keys keep their defaults
	assert.Equal(t, 10, cfg.ConnectionConfig.MaxIdleConns)
	assert.Equal(t, time.Hour, cfg.ConnectionConfig.ConnMaxLifetime)
	assert.True(t, cfg.DataMigrateConfig.EnableMigrateOnStartup)
	assert.Equal(t, "json", cfg.LogConfig.Format)
	assert.True(t, cfg.LogConfig.File.Enabled)
	assert.Equal(t, "/var/log/shop", cfg.LogConfig.File.Dir)
	assert.Equal(t, 14, cfg.LogConfig.File.MaxAgeDays)
}

func TestLoadConfigWithEnvFile(t *testing.T) {
	t.Cleanup(func() {
		_ = os.Unsetenv("DB_HOST")
		_ = os.Unsetenv("DB_PASSWORD")
		_ = os.Unsetenv("DB_MAX_OPEN_CONNS")
	})
	env := writeFile(t, ".env", "DB_HOST=replica.internal\nDB_PASSWORD=s3cret\nDB_MAX_OPEN_CONNS=7\n")

	cfg, err := LoadConfig(writeFile(t, "db.yaml", sampleConfig), env)
	require.NoError(t, err)
	assert.Equal(t, "replica.internal", cfg.ConnectionConfig.Host)
	assert.Equal(t, "s3cret", cfg.ConnectionConfig.Password)
	assert.Equal(t, 7, cfg.ConnectionConfig.MaxOpenConns)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadConfig(writeFile(t, "bad.yaml", "connection: ["))
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadConfig("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "failed to load env files")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"sqlite needs no host", func(c *Config) {
			c.ConnectionConfig.Type = "sqlite"
			c.ConnectionConfig.DBName = ":memory:"
		}, ""},
		{"mysql needs host", func(c *Config) {
			c.ConnectionConfig.Type = "mysql"
			c.ConnectionConfig.DBName = "shop"
		}, "host is required for mysql"},
		{"unknown type", func(c *Config) {
			c.ConnectionConfig.Type = "oracle"
			c.ConnectionConfig.DBName = "shop"
		}, "invalid database configuration"},
		{"missing dbname", func(c *Config) {
			c.ConnectionConfig.Type = "sqlite"
		}, "invalid database configuration"},
		{"bad port", func(c *Config) {
			c.ConnectionConfig.Type = "postgres"
			c.ConnectionConfig.Host = "h"
			c.ConnectionConfig.DBName = "shop"
			c.ConnectionConfig.Port = 70000
		}, "invalid database configuration"},
		{"bad log format", func(c *Config) {
			c.ConnectionConfig.Type = "sqlite"
			c.ConnectionConfig.DBName = "x"
			c.LogConfig.Format = "xml"
		}, "invalid database configuration"},
		{"negative log retention", func(c *Config) {
			c.ConnectionConfig.Type = "sqlite"
			c.ConnectionConfig.DBName = "x"
			c.LogConfig.File.MaxAgeDays = -1
		}, "invalid database configuration"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "mysql")
	t.Setenv("DB_PORT", "3307")
	t.Setenv("DB_NAME", "orders")
	t.Setenv("DB_CONN_MAX_LIFETIME", "90")
	t.Setenv("DB_ENABLE_RECONNECT", "0")
	t.Setenv("DB_ENABLE_QUERY_LOG", "T")
	t.Setenv("DB_ENABLE_METRICS", "TRUE")
	t.Setenv("DB_MAX_IDLE_CONNS", "not-a-number")

	cfg := DefaultConnectionConfig()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "mysql", cfg.Type)
	assert.Equal(t, 3307, cfg.Port)
	assert.Equal(t, "orders", cfg.DBName)
	assert.Equal(t, 90*time.Second, cfg.ConnMaxLifetime)
	assert.False(t, cfg.EnableReconnect)
	assert.True(t, cfg.EnableQueryLog)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, 10, cfg.MaxIdleConns)
}

func TestApplyEnvOverridesIgnoresBadBools(t *testing.T) {
	t.Setenv("DB_ENABLE_RECONNECT", "maybe")
	t.Setenv("DB_ENABLE_QUERY_LOG", "yes")

	cfg := DefaultConnectionConfig()
	ApplyEnvOverrides(cfg)
	assert.True(t, cfg.EnableReconnect)
	assert.False(t, cfg.EnableQueryLog)

	t.Setenv("DB_ENABLE_RECONNECT", "False")
	ApplyEnvOverrides(cfg)
	assert.False(t, cfg.EnableReconnect)
}

func TestApplyLogConfigWritesDailyFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	t.Cleanup(func() {
		utils.DisableFileLog()
		utils.SetAllLoggersLevel(logrus.InfoLevel)
	})

	require.NoError(t, ApplyLogConfig(LogConfig{
		Level: "info",
		File:  FileLogConfig{Enabled: true, Dir: dir, MaxAgeDays: 3, Level: "debug"},
	}))
	l := utils.NewLogger("DBFILELOG")
	l.Debug("pool resized")

	matches, err := filepath.Glob(filepath.Join(dir, "*", "debug.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), "DBFILELOG : pool resized")
}

func TestApplyLogConfigReportsBadDir(t *testing.T) {
	blocker := writeFile(t, "not-a-dir", "x")
	err := ApplyLogConfig(LogConfig{File: FileLogConfig{Enabled: true, Dir: filepath.Join(blocker, "logs")}})
	assert.ErrorContains(t, err, "failed to configure file log")
}
