package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Source resolves settings from the process environment, optionally layered
// over a config file (.env, yaml, json). Environment always wins.
type Source struct {
	v *viper.Viper
}

// FromEnv returns a Source backed only by environment variables.
func FromEnv() *Source {
	v := viper.New()
	v.AutomaticEnv()
	return &Source{v: v}
}

// Load reads file (when non-empty) and then overlays the environment.
func Load(file string) (*Source, error) {
	s := FromEnv()
	file = strings.TrimSpace(file)
	if file == "" {
		return s, nil
	}
	s.v.SetConfigFile(file)
	if err := s.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", file, err)
	}
	return s, nil
}

func (s *Source) raw(key string) string {
	return strings.TrimSpace(s.v.GetString(key))
}

func (s *Source) String(key, fallback string) string {
	if v := s.raw(key); v != "" {
		return v
	}
	return fallback
}

func (s *Source) RequiredString(key string) (string, error) {
	v := s.raw(key)
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func (s *Source) Port(key, fallback string) (string, error) {
	v := s.String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

func (s *Source) Int(key string, fallback int) (int, error) {
	v := s.raw(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got %q)", key, v)
	}
	return n, nil
}

func (s *Source) Bool(key string, fallback bool) (bool, error) {
	v := s.raw(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean (got %q)", key, v)
	}
	return b, nil
}

func (s *Source) Float(key string, fallback float64) (float64, error) {
	v := s.raw(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number (got %q)", key, v)
	}
	return f, nil
}

// Duration accepts Go duration syntax ("90s", "24h").
func (s *Source) Duration(key string, fallback time.Duration) (time.Duration, error) {
	v := s.raw(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s must be a non-negative duration (got %q)", key, v)
	}
	return d, nil
}

// List splits a comma separated value, dropping blanks.
func (s *Source) List(key string) []string {
	var out []string
	for _, part := range strings.Split(s.raw(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
