// Package bootstrap implements spec component I: parse the option set,
// open output sinks, build the codec/protection/oracle/registry stack,
// register the enabled measurement tests, and install the fault
// handler — the Go edition of spec.md §4.I's "environment-style config"
// reader, extended with a config-file format (SPEC_FULL.md's
// CONFIGURATION SURFACE: `key value` pairs, `#` comments, shell-quoted
// values) in the same terse key=value spirit as a systemd unit drop-in.
package bootstrap

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Config is the fully-parsed option set, with every recognized key's
// default already applied.
type Config struct {
	IntervalMs     int64
	ClearSoftDirty bool
	OutputDir      string
	LogFile        string
	Codecs         []string
	ProtectionMode string
	Enabled        map[string]bool
	HostLabels     bool
}

// DefaultConfig returns the built-in option set, used when no config
// file is given.
func DefaultConfig() Config {
	return defaultConfig()
}

// SplitCommaList exposes the config parser's comma-list splitting for
// the demo binary's --codecs flag, which uses the same syntax as the
// config file's codecs key.
func SplitCommaList(v string) []string {
	return splitCommaList(v)
}

func defaultConfig() Config {
	return Config{
		IntervalMs:     1000,
		ClearSoftDirty: false,
		OutputDir:      ".",
		LogFile:        "log.txt",
		Codecs:         []string{"zlib", "snappy"},
		ProtectionMode: "mprotect",
		Enabled:        map[string]bool{},
		HostLabels:     false,
	}
}

// LoadFile reads a config file at path in the `key value` format
// documented in SPEC_FULL.md: blank lines and lines starting with `#`
// are skipped, and a value may be single- or double-quoted to include
// leading/trailing whitespace.
func LoadFile(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "open config file %s", path)
	}
	defer f.Close()
	return parse(f)
}

func parse(r io.Reader) (Config, error) {
	cfg := defaultConfig()
	s := bufio.NewScanner(r)
	lineNo := 0
	for s.Scan() {
		lineNo++
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, err := splitKeyValue(line)
		if err != nil {
			return Config{}, errors.Wrapf(err, "config line %d", lineNo)
		}
		if err := applyKey(&cfg, key, value); err != nil {
			return Config{}, errors.Wrapf(err, "config line %d", lineNo)
		}
	}
	if err := s.Err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitKeyValue(line string) (string, string, error) {
	fields := strings.SplitN(line, " ", 2)
	if len(fields) != 2 {
		return "", "", errors.Errorf("expected `key value`, got %q", line)
	}
	key := strings.TrimSpace(fields[0])
	value := unquote(strings.TrimSpace(fields[1]))
	return key, value, nil
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

func applyKey(cfg *Config, key, value string) error {
	switch {
	case key == "interval-ms":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return errors.Wrapf(err, "interval-ms %q", value)
		}
		cfg.IntervalMs = n
	case key == "clear-soft-dirty":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "clear-soft-dirty %q", value)
		}
		cfg.ClearSoftDirty = b
	case key == "output-dir":
		cfg.OutputDir = value
	case key == "log-file":
		cfg.LogFile = value
	case key == "codecs":
		cfg.Codecs = splitCommaList(value)
	case key == "protection-mode":
		cfg.ProtectionMode = value
	case key == "host-labels":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "host-labels %q", value)
		}
		cfg.HostLabels = b
	case strings.HasPrefix(key, "enable-"):
		b, err := strconv.ParseBool(value)
		if err != nil {
			return errors.Wrapf(err, "%s %q", key, value)
		}
		cfg.Enabled[strings.TrimPrefix(key, "enable-")] = b
	default:
		return errors.Errorf("unrecognized config key %q", key)
	}
	return nil
}

func splitCommaList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// IsEnabled reports whether the named test was turned on, falling back
// to def when the key was never set (so a test new to this edition can
// default to on without requiring every existing config file to list it).
func (c Config) IsEnabled(testName string, def bool) bool {
	if v, ok := c.Enabled[testName]; ok {
		return v
	}
	return def
}
