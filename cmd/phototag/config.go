package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fwojciec/phototag/imagefile"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = ".phototag.yaml"

// fileConfig is the YAML configuration file layout.
type fileConfig struct {
	BaseURL      string            `yaml:"base_url"`
	RefreshURL   string            `yaml:"refresh_url"`
	Token        string            `yaml:"token"`
	RefreshToken string            `yaml:"refresh_token"`
	Fields       map[string]string `yaml:"fields"`

	Images struct {
		MaxSize     int64    `yaml:"max_size"`
		Formats     []string `yaml:"formats"`
		Concurrency int      `yaml:"concurrency"`
	} `yaml:"images"`

	Log struct {
		File  string `yaml:"file"`
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// flagValues holds the command-line flags that take part in resolution.
type flagValues struct {
	baseURL      string
	token        string
	refreshToken string
	refreshURL   string
	logFile      string
	logLevel     string
	fields       []string // key=value
}

// envValues holds the environment variables that take part in resolution.
// They are read in main and passed in as values.
type envValues struct {
	baseURL      string
	token        string
	refreshToken string
}

// config is the resolved configuration.
type config struct {
	baseURL      string
	refreshURL   string
	token        string
	refreshToken string
	fields       map[string]string
	images       imagefile.Options
	logFile      string
	logLevel     zapcore.Level
}

// loadFileConfig reads the YAML config at path. A missing file at the
// default path yields an empty config; any other error is returned.
func loadFileConfig(path string) (fileConfig, error) {
	var fc fileConfig
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && path == defaultConfigPath:
		return fc, nil
	default:
		return fc, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fc, fmt.Errorf("parse config %s: %w", path, err)
	}
	return fc, nil
}

// resolveConfig merges flags, environment and file. The first non-empty
// value wins in that order.
func resolveConfig(f flagValues, e envValues, fc fileConfig) (config, error) {
	cfg := config{
		baseURL:      firstNonEmpty(f.baseURL, e.baseURL, fc.BaseURL),
		refreshURL:   firstNonEmpty(f.refreshURL, fc.RefreshURL),
		token:        firstNonEmpty(f.token, e.token, fc.Token),
		refreshToken: firstNonEmpty(f.refreshToken, e.refreshToken, fc.RefreshToken),
		fields:       make(map[string]string),
		images: imagefile.Options{
			MaxSize:     fc.Images.MaxSize,
			Formats:     fc.Images.Formats,
			Concurrency: fc.Images.Concurrency,
		},
		logFile: firstNonEmpty(f.logFile, fc.Log.File),
	}
	if cfg.baseURL == "" {
		return config{}, errors.New("no base URL: set -base-url, PHOTOTAG_BASE_URL or base_url in the config file")
	}

	for k, v := range fc.Fields {
		cfg.fields[k] = v
	}
	for _, kv := range f.fields {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return config{}, fmt.Errorf("invalid field %q: want key=value", kv)
		}
		cfg.fields[k] = v
	}

	level, err := zapcore.ParseLevel(firstNonEmpty(f.logLevel, fc.Log.Level, "info"))
	if err != nil {
		return config{}, fmt.Errorf("log level: %w", err)
	}
	cfg.logLevel = level
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// fieldsFlag collects repeated -field key=value flags.
type fieldsFlag []string

func (f *fieldsFlag) String() string { return strings.Join(*f, ",") }

func (f *fieldsFlag) Set(v string) error {
	*f = append(*f, v)
	return nil
}
