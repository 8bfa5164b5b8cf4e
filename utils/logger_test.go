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

package utils

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"trace":   logrus.TraceLevel,
		" DEBUG ": logrus.DebugLevel,
		"":        logrus.InfoLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestNewLoggerIsRegistered(t *testing.T) {
	a := NewLogger("REGISTRY")
	b := NewLogger("REGISTRY")
	assert.Same(t, a, b)

	assert.True(t, SetLoggerLevel("REGISTRY", "error"))
	assert.Equal(t, logrus.ErrorLevel, a.GetLevel())
	assert.False(t, SetLoggerLevel("NOPE", "error"))
}

func TestTextLogFormatter(t *testing.T) {
	f := &TextLogFormatter{LoggerName: "DATABASE-POOL", NameWidth: 8}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow",
		Data:    logrus.Fields{"b": 2, "a": 1},
	}
	out, err := f.Format(entry)
	require.NoError(t, err)
	line := string(out)
	assert.True(t, strings.HasPrefix(line, "2025-03-01 12:30:00.000 WARNING"), line)
	assert.Contains(t, line, "DATABASE : slow a=1 b=2\n")
}

func TestJSONLogFormatter(t *testing.T) {
	f := &JSONLogFormatter{LoggerName: "DATABASE"}
	out, err := f.Format(&logrus.Entry{
		Time:    time.Now(),
		Level:   logrus.ErrorLevel,
		Message: "commit failed",
		Data:    logrus.Fields{"error": errors.New("boom"), "rows": 3},
	})
	require.NoError(t, err)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "error", rec["level"])
	assert.Equal(t, "DATABASE", rec["logger"])
	assert.Equal(t, "commit failed", rec["message"])
	fields := rec["fields"].(map[string]interface{})
	assert.Equal(t, "boom", fields["error"])
	assert.Equal(t, float64(3), fields["rows"])
}

func TestConfigureLogFormatAppliesToNewLoggers(t *testing.T) {
	ConfigureLogFormat("JSON")
	t.Cleanup(func() { ConfigureLogFormat("text") })

	l := NewLogger("FORMAT-JSON")
	assert.IsType(t, &JSONLogFormatter{}, l.Formatter)

	ConfigureLogFormat("text")
	assert.IsType(t, &TextLogFormatter{}, NewLogger("FORMAT-TEXT").Formatter)
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("UTILS_TEST_STR", "x")
	t.Setenv("UTILS_TEST_BOOL", "true")
	t.Setenv("UTILS_TEST_BAD", "maybe")
	_ = os.Unsetenv("UTILS_TEST_MISSING")

	assert.Equal(t, "x", EnvDefaultString("UTILS_TEST_STR", "d"))
	assert.Equal(t, "d", EnvDefaultString("UTILS_TEST_MISSING", "d"))
	assert.True(t, EnvDefaultBool("UTILS_TEST_BOOL", false))
	assert.True(t, EnvDefaultBool("UTILS_TEST_BAD", true))
	assert.False(t, EnvDefaultBool("UTILS_TEST_MISSING", false))
}

func TestDailyLevelWriterRollsAndCleansUp(t *testing.T) {
	dir := t.TempDir()
	for _, d := range []string{"2025-03-01", "2025-03-05", "archive"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.Local)
	w := &dailyLevelWriter{baseDir: dir, level: "info", maxAgeDays: 7, now: func() time.Time { return now }}
	t.Cleanup(func() { _ = w.Close() })

	_, err := w.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = w.Write([]byte("second\n"))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "2025-03-10", "info.log"))
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond\n", string(data))
	assert.NoDirExists(t, filepath.Join(dir, "2025-03-01"))
	assert.DirExists(t, filepath.Join(dir, "2025-03-05"))
	assert.DirExists(t, filepath.Join(dir, "archive"))

	now = now.AddDate(0, 0, 1)
	_, err = w.Write([]byte("next day\n"))
	require.NoError(t, err)
	data, err = os.ReadFile(filepath.Join(dir, "2025-03-11", "info.log"))
	require.NoError(t, err)
	assert.Equal(t, "next day\n", string(data))
}

func TestDailyLevelWriterKeepsEverythingWithoutMaxAge(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "2000-01-01"), 0o755))
	w := &dailyLevelWriter{baseDir: dir, level: "error", now: time.Now}
	t.Cleanup(func() { _ = w.Close() })

	_, err := w.Write([]byte("boom\n"))
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "2000-01-01"))
}

func readLogFile(t *testing.T, dir, level string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*", level+".log"))
	require.NoError(t, err)
	var b strings.Builder
	for _, m := range matches {
		data, err := os.ReadFile(m)
		require.NoError(t, err)
		b.Write(data)
	}
	return b.String()
}

func TestFileLogSeparatesLevelsFromConsole(t *testing.T) {
	var console bytes.Buffer
	ConfigureLogOutput(&console)
	ConfigureConsoleLogLevel("warn")
	dir := t.TempDir()
	require.NoError(t, ConfigureFileLog(FileLogOptions{Dir: dir, Level: "debug", Format: "json"}))
	t.Cleanup(func() {
		DisableFileLog()
		ConfigureConsoleLogLevel("info")
		ConfigureFileLogLevel("info")
		ConfigureLogOutput(os.Stdout)
	})

	l := NewLogger("FILE-SPLIT")
	assert.Equal(t, logrus.DebugLevel, l.GetLevel())
	l.Trace("dropped everywhere")
	l.Debug("saved query")
	l.Info("connected")
	l.Warn("slow query")
	l.Error("commit failed")

	assert.NotContains(t, console.String(), "saved query")
	assert.NotContains(t, console.String(), "connected")
	assert.Contains(t, console.String(), "slow query")
	assert.Contains(t, console.String(), "commit failed")

	assert.Empty(t, readLogFile(t, dir, "trace"))
	assert.Contains(t, readLogFile(t, dir, "debug"), "saved query")
	assert.Contains(t, readLogFile(t, dir, "info"), "connected")
	assert.Contains(t, readLogFile(t, dir, "warn"), "slow query")

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(readLogFile(t, dir, "error")), &rec))
	assert.Equal(t, "FILE-SPLIT", rec["logger"])
	assert.Equal(t, "commit failed", rec["message"])

	DisableFileLog()
	assert.Equal(t, logrus.WarnLevel, l.GetLevel())
	l.Warn("after disable")
	assert.NotContains(t, readLogFile(t, dir, "warn"), "after disable")
}

func TestFileLogAppliesToExistingLoggers(t *testing.T) {
	ConfigureLogOutput(&bytes.Buffer{})
	l := NewLogger("FILE-LATE")
	dir := t.TempDir()
	require.NoError(t, ConfigureFileLog(FileLogOptions{Dir: dir}))
	t.Cleanup(func() {
		DisableFileLog()
		ConfigureLogOutput(os.Stdout)
	})

	l.Error("late error")
	assert.Contains(t, readLogFile(t, dir, "error"), "FILE-LATE : late error")
}
