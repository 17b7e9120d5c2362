package feeders

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// TomlFeeder reads a TOML file. With Key set only that top-level table is
// decoded into the target.
type TomlFeeder struct {
	Path string
	Key  string
	// Required turns a missing table into ErrKeyNotFound.
	Required bool
}

// NewTomlFeeder creates a TomlFeeder that decodes the whole file.
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed decodes the file (or its Key table) into target.
func (t TomlFeeder) Feed(target any) error {
	if t.Key != "" {
		return t.FeedKey(t.Key, target)
	}

	if _, err := toml.DecodeFile(t.Path, target); err != nil {
		return fmt.Errorf("failed to read toml %s: %w", t.Path, err)
	}
	return nil
}

// FeedKey reads a TOML file and decodes one top-level key into target. A
// missing key leaves target untouched unless Required is set.
func (t TomlFeeder) FeedKey(key string, target any) error {
	var allData map[string]toml.Primitive
	md, err := toml.DecodeFile(t.Path, &allData)
	if err != nil {
		return fmt.Errorf("failed to read toml %s: %w", t.Path, err)
	}

	value, exists := allData[key]
	if !exists {
		if t.Required {
			return fmt.Errorf("%w: %s in %s", ErrKeyNotFound, key, t.Path)
		}
		return nil
	}

	if err := md.PrimitiveDecode(value, target); err != nil {
		return fmt.Errorf("failed to decode toml key %s: %w", key, err)
	}
	return nil
}
