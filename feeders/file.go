package feeders

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileFeeder reads one file and decodes it over the target struct. Keys
// absent from the file keep their current (default) values.
type fileFeeder struct {
	path     string
	optional bool
	kind     string
	decode   func(data []byte, target any) error
}

func (f fileFeeder) feed(structure any) error {
	t := reflect.TypeOf(structure)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrFileInvalidStructure, structure)
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if f.optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %s: %w", ErrFileRead, f.path, err)
	}
	if err := f.decode(data, structure); err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrFileDecode, f.kind, f.path, err)
	}
	return nil
}

// YamlFeeder is a feeder that reads YAML files
type YamlFeeder struct {
	Path string
	// Optional skips a missing file instead of failing.
	Optional bool
}

// NewYamlFeeder creates a new YamlFeeder that reads from the specified YAML file
func NewYamlFeeder(filePath string) YamlFeeder {
	return YamlFeeder{Path: filePath}
}

// Feed implements the config feeder contract.
func (y YamlFeeder) Feed(structure any) error {
	return fileFeeder{path: y.Path, optional: y.Optional, kind: "yaml", decode: yaml.Unmarshal}.feed(structure)
}

// TomlFeeder is a feeder that reads TOML files
type TomlFeeder struct {
	Path     string
	Optional bool
}

// NewTomlFeeder creates a new TomlFeeder that reads from the specified TOML file
func NewTomlFeeder(filePath string) TomlFeeder {
	return TomlFeeder{Path: filePath}
}

// Feed implements the config feeder contract.
func (t TomlFeeder) Feed(structure any) error {
	return fileFeeder{path: t.Path, optional: t.Optional, kind: "toml", decode: toml.Unmarshal}.feed(structure)
}

// JSONFeeder is a feeder that reads JSON files
type JSONFeeder struct {
	Path     string
	Optional bool
}

// NewJSONFeeder creates a new JSONFeeder that reads from the specified JSON file
func NewJSONFeeder(filePath string) JSONFeeder {
	return JSONFeeder{Path: filePath}
}

// Feed implements the config feeder contract.
func (j JSONFeeder) Feed(structure any) error {
	return fileFeeder{path: j.Path, optional: j.Optional, kind: "json", decode: json.Unmarshal}.feed(structure)
}

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(structure any) error
}

// ForFile picks a feeder from the file extension (.yaml, .yml, .toml or
// .json).
func ForFile(path string) (Feeder, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return NewYamlFeeder(path), nil
	case ".toml":
		return NewTomlFeeder(path), nil
	case ".json":
		return NewJSONFeeder(path), nil
	default:
		return nil, fmt.Errorf("%w: unsupported config extension %q", ErrFileDecode, ext)
	}
}
