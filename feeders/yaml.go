// Package feeders provides configuration feeders reading YAML files, TOML files
// and prefixed environment variables.
package feeders

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// YamlFeeder reads a YAML file. With Key set only that top-level section is
// decoded into the target.
type YamlFeeder struct {
	Path string
	Key  string
	// Required turns a missing section into ErrKeyNotFound.
	Required bool
}

// NewYamlFeeder creates a YamlFeeder that decodes the whole file.
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed decodes the file (or its Key section) into target.
func (y YamlFeeder) Feed(target any) error {
	if y.Key != "" {
		return y.FeedKey(y.Key, target)
	}

	data, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileRead, y.Path, err)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("failed to parse yaml %s: %w", y.Path, err)
	}
	return nil
}

// FeedKey reads a YAML file and decodes one top-level key into target. A
// missing key leaves target untouched unless Required is set.
func (y YamlFeeder) FeedKey(key string, target any) error {
	data, err := os.ReadFile(y.Path)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrFileRead, y.Path, err)
	}

	var allData map[string]yaml.Node
	if err := yaml.Unmarshal(data, &allData); err != nil {
		return fmt.Errorf("failed to parse yaml %s: %w", y.Path, err)
	}

	node, exists := allData[key]
	if !exists {
		if y.Required {
			return fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, y.Path)
		}
		return nil
	}

	if err := node.Decode(target); err != nil {
		return fmt.Errorf("failed to decode yaml key %s: %w", key, err)
	}
	return nil
}
