package config

import (
	"context"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if SCOUTQ_CONFIG is set
//  3. env (prefix SCOUTQ_, double underscore nests: SCOUTQ_SCOUT__CONCURRENCY)
func Load(ctx context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("SCOUTQ_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, Wrap(ErrLoadConfig, err)
		}
	}

	envProvider := env.Provider("SCOUTQ_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "SCOUTQ_"))
		// Double underscore separates nested keys, single underscores are
		// preserved to match koanf tags on the structs.
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, Wrap(ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, Wrap(ErrLoadConfig, err)
	}

	if cfg.Addr == "" {
		return nil, Wrap(ErrInvalidConfig, nil)
	}
	return &cfg, nil
}
