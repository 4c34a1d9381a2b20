// Package logging provides category loggers whose verbosity is controlled by
// a JSON file under the storage directory.  The file maps category names to
// level names and is created with sane defaults on first run, so operators
// can raise or lower the noise of individual subsystems without a rebuild.
package logging

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level is the severity threshold of a logger.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

var (
	mu     sync.RWMutex
	levels = map[string]Level{"default": LevelInfo}
)

// Setup loads the verbosity map from dir/logging.json, writing a default file
// when none exists.  Unknown level names fall back to info.
func Setup(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, "logging.json")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		def := map[string]string{
			"default":   "info",
			"oauth2":    "info",
			"localauth": "info",
			"gate":      "info",
			"upstream":  "info",
			"queue":     "warn",
		}
		raw, _ := json.MarshalIndent(def, "", "  ")
		if err := os.WriteFile(path, raw, 0o644); err != nil {
			return err
		}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var named map[string]string
	if err := json.Unmarshal(raw, &named); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	levels = map[string]Level{"default": LevelInfo}
	for cat, name := range named {
		lvl, ok := levelNames[strings.ToLower(name)]
		if !ok {
			lvl = LevelInfo
		}
		levels[cat] = lvl
	}
	return nil
}

// Logger writes leveled messages for one category through the stdlib logger.
type Logger struct {
	category string
}

// New returns the logger for a category.
func New(category string) *Logger {
	return &Logger{category: category}
}

func (l *Logger) enabled(lvl Level) bool {
	mu.RLock()
	defer mu.RUnlock()
	min, ok := levels[l.category]
	if !ok {
		min = levels["default"]
	}
	return lvl >= min
}

func (l *Logger) printf(lvl Level, tag, format string, args ...any) {
	if !l.enabled(lvl) {
		return
	}
	log.Printf("["+tag+"] "+l.category+": "+format, args...)
}

func (l *Logger) Debugf(format string, args ...any) { l.printf(LevelDebug, "DBG", format, args...) }
func (l *Logger) Infof(format string, args ...any)  { l.printf(LevelInfo, "INF", format, args...) }
func (l *Logger) Warnf(format string, args ...any)  { l.printf(LevelWarn, "WRN", format, args...) }
func (l *Logger) Errorf(format string, args ...any) { l.printf(LevelError, "ERR", format, args...) }
