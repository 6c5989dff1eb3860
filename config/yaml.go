package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// expandEnv replaces ${VAR} and $VAR references, ${VAR:-default} falls back
// to default when VAR is unset or empty.
func expandEnv(blob []byte) []byte {
	return []byte(os.Expand(string(blob), func(name string) string {
		key, def, hasDefault := strings.Cut(name, ":-")
		if v := os.Getenv(key); v != "" || !hasDefault {
			return v
		}
		return def
	}))
}

// readEnvYaml loads .env when present, then reads path with env references expanded.
func readEnvYaml(path string) ([]byte, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("can't load .env file: %w", err)
	}
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("can't read config file: %w", err)
	}
	return expandEnv(blob), nil
}

func parseYaml(out interface{}, blob []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(blob))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("can't parse yaml: %w", err)
	}
	return nil
}
