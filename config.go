package texttemplar

import (
	"log/slog"
	"os"
	"strconv"
)

// Config contains the engine knobs that affect parsing and parameter
// handling.
type Config struct {
	// Strict makes Set and Get fail with UnknownParamError for names the
	// template never mentions. On by default.
	Strict bool
	// MaxDepth bounds block nesting; deeper templates fail to parse with a
	// StructuralError instead of risking stack exhaustion.
	MaxDepth int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Strict:   true,
		MaxDepth: 100,
	}
}

// ConfigFromEnvironment returns the default configuration overridden by
// TEXTTEMPLAR_STRICT and TEXTTEMPLAR_MAX_DEPTH, when set.
func ConfigFromEnvironment() Config {
	cfg := DefaultConfig()
	if val := os.Getenv("TEXTTEMPLAR_STRICT"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Strict = b
		}
	}
	if val := os.Getenv("TEXTTEMPLAR_MAX_DEPTH"); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			cfg.MaxDepth = n
		}
	}
	return cfg
}

type settings struct {
	cfg    Config
	legacy bool
	logger *slog.Logger
}

// Option customizes parsing.
type Option func(*settings)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(s *settings) { s.cfg = cfg }
}

// WithStrictParams toggles strict parameter-name checking.
func WithStrictParams(strict bool) Option {
	return func(s *settings) { s.cfg.Strict = strict }
}

// WithMaxDepth sets the maximum block nesting depth.
func WithMaxDepth(depth int) Option {
	return func(s *settings) { s.cfg.MaxDepth = depth }
}

// WithLegacyVars rewrites legacy %NAME% placeholders into TMPL_VAR syntax
// before parsing.
func WithLegacyVars() Option {
	return func(s *settings) { s.legacy = true }
}

// WithLogger attaches a debug logger. A nil logger disables logging, which
// is the default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}
