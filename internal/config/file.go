package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// loadFile overlays the YAML file at path onto c. Keys missing from the
// file keep their current values.
func loadFile(path string, c *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

const redacted = "***"

// Redacted returns a copy without secrets, safe to log.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.LLM.APIKey = mask(c.LLM.APIKey)
	c.Transcription.APIKey = mask(c.Transcription.APIKey)
	c.Storage.Minio.SecretKey = mask(c.Storage.Minio.SecretKey)
	c.Database.URL = mask(c.Database.URL)
	c.Redis.URL = mask(c.Redis.URL)
	return c
}

// String renders the redacted config as YAML.
func (c Config) String() string {
	out, err := yaml.Marshal(c.Redacted())
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(out)
}
