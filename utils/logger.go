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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

type Logger = logrus.Logger

const (
	timestampFormat = "2006-01-02 15:04:05.000"
	dateLayout      = "2006-01-02"
)

var (
	loggerRegistryMu sync.RWMutex
	loggerRegistry   = map[string]*logrus.Logger{}
	consoleLevel     = ParseLogLevel(EnvDefaultString("LOG_LEVEL", "info"))
	fileLevel        = ParseLogLevel(EnvDefaultString("FILE_LOG_LEVEL", "info"))
	logFormat        = EnvDefaultString("LOG_FORMAT", "text")
	logOutput        io.Writer = os.Stdout
	// nil while file logging is off
	fileOut *fileSink
)

func init() {
	if EnvDefaultBool("FILE_LOG_ENABLED", false) {
		maxAge, _ := strconv.Atoi(EnvDefaultString("FILE_LOG_MAX_AGE_DAYS", "0"))
		_ = ConfigureFileLog(FileLogOptions{
			Dir:        EnvDefaultString("FILE_LOG_DIR", "logs"),
			MaxAgeDays: maxAge,
			Format:     EnvDefaultString("FILE_LOG_FORMAT", "text"),
		})
	}
}

// ConfigureLogFormat selects "json" or "text" for loggers created afterwards.
func ConfigureLogFormat(format string) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	logFormat = normalizeFormat(format)
}

// ConfigureLogOutput redirects the console output of every logger to w.
func ConfigureLogOutput(w io.Writer) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	logOutput = w
}

// FileLogOptions configures the daily rolling file output. Entries are
// written to Dir/<yyyy-mm-dd>/<level>.log; date directories older than
// MaxAgeDays are removed when the day rolls over, zero keeps them all.
type FileLogOptions struct {
	Dir        string
	MaxAgeDays int
	Level      string
	Format     string
}

// ConfigureFileLog turns on file output for every logger, registered or not.
// Calling it again replaces the previous destination.
func ConfigureFileLog(opts FileLogOptions) error {
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	sink := newFileSink(opts.Dir, opts.MaxAgeDays, normalizeFormat(opts.Format))

	loggerRegistryMu.Lock()
	old := fileOut
	fileOut = sink
	if opts.Level != "" {
		fileLevel = ParseLogLevel(opts.Level)
	}
	applyBaseLevelLocked()
	loggerRegistryMu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// DisableFileLog stops file output and closes the open log files.
func DisableFileLog() {
	loggerRegistryMu.Lock()
	old := fileOut
	fileOut = nil
	applyBaseLevelLocked()
	loggerRegistryMu.Unlock()
	if old != nil {
		old.Close()
	}
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return "json"
	}
	return "text"
}

// ParseLogLevel maps a level name to its logrus level, defaulting to info.
func ParseLogLevel(s string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "info", "":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.InfoLevel
	}
}

func maxLevel(a, b logrus.Level) logrus.Level {
	if a >= b {
		return a
	}
	return b
}

// baseLevelLocked is the most verbose level any output accepts.
func baseLevelLocked() logrus.Level {
	if fileOut == nil {
		return consoleLevel
	}
	return maxLevel(consoleLevel, fileLevel)
}

func applyBaseLevelLocked() {
	base := baseLevelLocked()
	for _, lg := range loggerRegistry {
		lg.SetLevel(base)
	}
}

// NewLogger returns the logger registered under name, creating it with the
// configured format and levels on first use. The logger itself writes
// nowhere; a console hook and a file hook filter entries by their own level.
func NewLogger(name string) *logrus.Logger {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	if l, ok := loggerRegistry[name]; ok {
		return l
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(baseLevelLocked())
	if logFormat == "json" {
		l.SetFormatter(&JSONLogFormatter{LoggerName: name})
	} else {
		l.SetFormatter(&TextLogFormatter{LoggerName: name, NameWidth: 10, Color: !color.NoColor})
	}
	l.AddHook(consoleWriterHook{})
	l.AddHook(&levelWriterHook{name: name})
	loggerRegistry[name] = l
	return l
}

// SetLoggerLevel caps the level of one registered logger. It reports false
// when no logger goes by name.
func SetLoggerLevel(name string, lvlStr string) bool {
	loggerRegistryMu.RLock()
	lg, ok := loggerRegistry[name]
	loggerRegistryMu.RUnlock()
	if !ok {
		return false
	}
	lg.SetLevel(ParseLogLevel(lvlStr))
	return true
}

// SetAllLoggersLevel sets the console and file levels of every logger.
func SetAllLoggersLevel(lvl logrus.Level) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	consoleLevel = lvl
	fileLevel = lvl
	applyBaseLevelLocked()
}

// ConfigureConsoleLogLevel sets the level of console output only.
func ConfigureConsoleLogLevel(levelStr string) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	consoleLevel = ParseLogLevel(levelStr)
	applyBaseLevelLocked()
}

// ConfigureFileLogLevel sets the level of file output only.
func ConfigureFileLogLevel(levelStr string) {
	loggerRegistryMu.Lock()
	defer loggerRegistryMu.Unlock()
	fileLevel = ParseLogLevel(levelStr)
	applyBaseLevelLocked()
}

type consoleWriterHook struct{}

func (consoleWriterHook) Levels() []logrus.Level { return logrus.AllLevels }

func (consoleWriterHook) Fire(e *logrus.Entry) error {
	loggerRegistryMu.RLock()
	lvl, w := consoleLevel, logOutput
	loggerRegistryMu.RUnlock()
	if e.Level > lvl || w == nil {
		return nil
	}
	b, err := e.Logger.Formatter.Format(e)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

type levelWriterHook struct {
	name string
}

func (h *levelWriterHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *levelWriterHook) Fire(e *logrus.Entry) error {
	loggerRegistryMu.RLock()
	sink, lvl := fileOut, fileLevel
	loggerRegistryMu.RUnlock()
	if sink == nil || e.Level > lvl {
		return nil
	}
	return sink.write(h.name, e)
}

// fileSink holds one daily writer per level, shared by all loggers.
type fileSink struct {
	format  string
	writers map[logrus.Level]*dailyLevelWriter
}

func newFileSink(dir string, maxAgeDays int, format string) *fileSink {
	mk := func(level string) *dailyLevelWriter {
		return &dailyLevelWriter{baseDir: dir, level: level, maxAgeDays: maxAgeDays, now: time.Now}
	}
	errorW := mk("error")
	return &fileSink{
		format: format,
		writers: map[logrus.Level]*dailyLevelWriter{
			logrus.TraceLevel: mk("trace"),
			logrus.DebugLevel: mk("debug"),
			logrus.InfoLevel:  mk("info"),
			logrus.WarnLevel:  mk("warn"),
			logrus.ErrorLevel: errorW,
			logrus.FatalLevel: errorW,
			logrus.PanicLevel: errorW,
		},
	}
}

func (s *fileSink) write(name string, e *logrus.Entry) error {
	w, ok := s.writers[e.Level]
	if !ok {
		return nil
	}
	var f logrus.Formatter
	if s.format == "json" {
		f = &JSONLogFormatter{LoggerName: name}
	} else {
		f = &TextLogFormatter{LoggerName: name, NameWidth: 10}
	}
	b, err := f.Format(e)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

func (s *fileSink) Close() {
	for _, w := range s.writers {
		_ = w.Close()
	}
}

type dailyLevelWriter struct {
	baseDir    string
	level      string
	maxAgeDays int
	now        func() time.Time

	mu      sync.Mutex
	curDate string
	file    *os.File
}

func (w *dailyLevelWriter) ensureOpen(date string) error {
	if w.file != nil && w.curDate == date {
		return nil
	}
	if w.file != nil {
		_ = w.file.Close()
		w.file = nil
	}
	dir := filepath.Join(w.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join(dir, w.level+".log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	w.file = f
	w.curDate = date
	return nil
}

// cleanup removes date directories older than maxAgeDays.
func (w *dailyLevelWriter) cleanup(now time.Time) {
	if w.maxAgeDays <= 0 {
		return
	}
	cutoff := now.AddDate(0, 0, -w.maxAgeDays)
	cutoff = time.Date(cutoff.Year(), cutoff.Month(), cutoff.Day(), 0, 0, 0, 0, now.Location())

	entries, err := os.ReadDir(w.baseDir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		d, err := time.ParseInLocation(dateLayout, e.Name(), now.Location())
		if err != nil {
			continue
		}
		if d.Before(cutoff) {
			_ = os.RemoveAll(filepath.Join(w.baseDir, e.Name()))
		}
	}
}

func (w *dailyLevelWriter) Write(p []byte) (int, error) {
	now := w.now()
	date := now.Format(dateLayout)
	w.mu.Lock()
	defer w.mu.Unlock()
	rolled := w.curDate != date
	if err := w.ensureOpen(date); err != nil {
		return 0, err
	}
	if rolled {
		w.cleanup(now)
	}
	return w.file.Write(p)
}

func (w *dailyLevelWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	w.curDate = ""
	return err
}

var levelColors = map[logrus.Level]*color.Color{
	logrus.TraceLevel: forcedColor(color.FgMagenta),
	logrus.DebugLevel: forcedColor(color.FgBlue),
	logrus.InfoLevel:  forcedColor(color.FgGreen),
	logrus.WarnLevel:  forcedColor(color.FgYellow),
	logrus.ErrorLevel: forcedColor(color.FgRed),
	logrus.FatalLevel: forcedColor(color.FgRed),
	logrus.PanicLevel: forcedColor(color.FgRed),
}

var (
	nameColor  = forcedColor(color.FgCyan)
	faintColor = forcedColor(color.Faint)
)

func forcedColor(attr color.Attribute) *color.Color {
	c := color.New(attr)
	c.EnableColor()
	return c
}

// TextLogFormatter renders "time LEVEL pid --- name : message k=v ...".
// Color paints the level and name for terminals.
type TextLogFormatter struct {
	LoggerName string
	NameWidth  int
	Color      bool
}

func (f *TextLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	lvl := fmt.Sprintf("%7s", strings.ToUpper(entry.Level.String()))
	name := fmt.Sprintf("%*s", f.NameWidth, limitRunes(f.LoggerName, f.NameWidth))
	sep := "---"
	if f.Color {
		if c, ok := levelColors[entry.Level]; ok {
			lvl = c.Sprint(lvl)
		}
		name = nameColor.Sprint(name)
		sep = faintColor.Sprint(sep)
	}

	var b strings.Builder
	b.WriteString(entry.Time.Format(timestampFormat))
	b.WriteByte(' ')
	b.WriteString(lvl)
	b.WriteString(fmt.Sprintf(" %-6d %s ", os.Getpid(), sep))
	b.WriteString(name)
	b.WriteString(" : ")
	b.WriteString(entry.Message)
	for _, k := range sortedKeys(entry.Data) {
		b.WriteString(fmt.Sprintf(" %s=%v", k, entry.Data[k]))
	}
	b.WriteByte('\n')
	return []byte(b.String()), nil
}

// JSONLogFormatter renders one JSON object per entry.
type JSONLogFormatter struct {
	LoggerName string
}

func (f *JSONLogFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	rec := struct {
		Time    string                 `json:"time"`
		Level   string                 `json:"level"`
		Logger  string                 `json:"logger"`
		Caller  string                 `json:"caller,omitempty"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields,omitempty"`
	}{
		Time:    entry.Time.Format(timestampFormat),
		Level:   entry.Level.String(),
		Logger:  f.LoggerName,
		Message: entry.Message,
	}
	if entry.Caller != nil {
		rec.Caller = fmt.Sprintf("%s:%d", filepath.Base(entry.Caller.File), entry.Caller.Line)
	}
	if len(entry.Data) > 0 {
		rec.Fields = make(map[string]interface{}, len(entry.Data))
		for k, v := range entry.Data {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			rec.Fields[k] = v
		}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func sortedKeys(m logrus.Fields) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func limitRunes(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	return string(r[:n])
}

// EnvDefaultString returns the value of key, or def when it is unset or empty.
func EnvDefaultString(key string, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvDefaultBool parses key with strconv.ParseBool, falling back to def.
func EnvDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return def
		}
		return b
	}
	return def
}
