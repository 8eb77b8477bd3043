package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var durationZero = time.Duration(0)

func parseDuration(value string) (time.Duration, error) {
	return time.ParseDuration(value)
}

// configPathEnv names the environment variable carrying an optional
// YAML config file path, checked before the env-var override tier.
const configPathEnv = "CONFIG_FILE"

// Load builds a Config from DefaultConfig, overridden by an optional
// YAML file (path from CONFIG_FILE, skipped if unset or missing),
// then by any matching environment variables found via each field's
// `env` tag. Precedence: defaults -> YAML file -> env.
func Load() (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromFile(cfg, os.Getenv(configPathEnv)); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := setFieldsFromEnv(reflect.ValueOf(cfg).Elem()); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.LoadBalance.parseWeights(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// loadFromFile overlays cfg with the contents of the YAML file at
// path. A blank path, or a path that doesn't exist, leaves cfg
// untouched rather than erroring.
func loadFromFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

func setFieldsFromEnv(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := setFieldsFromEnv(field); err != nil {
				return err
			}
			continue
		}

		envKey := fieldType.Tag.Get("env")
		if envKey == "" || envKey == "-" {
			continue
		}
		envValue, ok := os.LookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("%s: %w", envKey, err)
		}
	}
	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(durationZero) {
			d, err := parseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
			return nil
		}
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	}
	return nil
}

// parseWeights turns "deepseek=3,ark-deepseek=1" into a physical-model
// weight map for the balancer to consume.
func (lb *LoadBalanceConfig) parseWeights() error {
	if lb.Weights == "" {
		return nil
	}
	for _, pair := range strings.Split(lb.Weights, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid weight entry %q", pair)
		}
		if _, err := strconv.Atoi(strings.TrimSpace(parts[1])); err != nil {
			return fmt.Errorf("invalid weight for %q: %w", parts[0], err)
		}
	}
	return nil
}

// ParsedWeights returns the physical-model weight overrides, or nil if
// none were configured.
func (lb *LoadBalanceConfig) ParsedWeights() map[string]int {
	if lb.Weights == "" {
		return nil
	}
	out := make(map[string]int)
	for _, pair := range strings.Split(lb.Weights, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			continue
		}
		w, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			continue
		}
		out[strings.TrimSpace(parts[0])] = w
	}
	return out
}
