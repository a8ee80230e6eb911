package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Lookup reads an environment variable. os.LookupEnv in production; a map in
// tests.
type Lookup func(key string) (string, bool)

func (l Lookup) String(key, def string) string {
	if v, ok := l(key); ok {
		return v
	}
	return def
}

func (l Lookup) Duration(key string, def time.Duration) (time.Duration, error) {
	if v, ok := l(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return d, nil
	}
	return def, nil
}

func (l Lookup) Bool(key string, def bool) (bool, error) {
	if v, ok := l(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("parse %s: %w", key, err)
		}
		return b, nil
	}
	return def, nil
}

func (l Lookup) Int(key string, def int) (int, error) {
	if v, ok := l(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}

func (l Lookup) Float(key string, def float64) (float64, error) {
	if v, ok := l(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return f, nil
	}
	return def, nil
}

// List splits an OS path-list value, dropping empty entries.
func (l Lookup) List(key string) []string {
	v, ok := l(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range filepath.SplitList(v) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// OSLookup reads the process environment.
func OSLookup() Lookup {
	return os.LookupEnv
}

// MapLookup reads from m.
func MapLookup(m map[string]string) Lookup {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}
