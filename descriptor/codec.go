package descriptor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format names a descriptor encoding.
type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
	FormatTOML     Format = "toml"
	FormatJSON     Format = "json"
)

// FileSuffix is the base suffix of descriptor files in a corpus, followed by
// the encoding extension (".integration.md", ".integration.yaml", ...).
const FileSuffix = ".integration"

// ParseFormat accepts a format name or a common alias ("md", "yml").
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "markdown", "md":
		return FormatMarkdown, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

// FormatFromPath derives the encoding from a file extension.
func FormatFromPath(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
}

// Extension returns the file extension used for f, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return ".md"
	case FormatYAML:
		return ".yaml"
	case FormatTOML:
		return ".toml"
	default:
		return ".json"
	}
}

// FileName is the conventional corpus file name for a module's descriptor.
func FileName(moduleID string, f Format) string {
	return moduleID + FileSuffix + f.Extension()
}

// IsDescriptorFile reports whether name looks like a corpus descriptor file.
func IsDescriptorFile(name string) bool {
	base := filepath.Base(name)
	ext := filepath.Ext(base)
	if _, err := FormatFromPath(base); err != nil {
		return false
	}
	return strings.HasSuffix(strings.TrimSuffix(base, ext), FileSuffix)
}

// Marshal encodes a normalized copy of d in format f, so the bytes decode
// back to the same value in every format. d itself is not modified.
func Marshal(d *Descriptor, f Format) ([]byte, error) {
	if d == nil {
		return nil, ErrNilDescriptor
	}
	d = d.Clone()
	d.Normalize()

	switch f {
	case FormatMarkdown:
		return MarshalMarkdown(d)
	case FormatYAML:
		return yaml.Marshal(d)
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(d); err != nil {
			return nil, fmt.Errorf("failed to encode descriptor as TOML: %w", err)
		}
		return buf.Bytes(), nil
	case FormatJSON:
		data, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to encode descriptor as JSON: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
}

// Unmarshal decodes data in format f and normalizes the result.
func Unmarshal(data []byte, f Format) (*Descriptor, error) {
	var d Descriptor
	switch f {
	case FormatMarkdown:
		return UnmarshalMarkdown(data)
	case FormatYAML:
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to decode YAML descriptor: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &d); err != nil {
			return nil, fmt.Errorf("failed to decode TOML descriptor: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to decode JSON descriptor: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, f)
	}
	d.Normalize()
	return &d, nil
}

// ReadFile loads a descriptor, choosing the decoder from the extension.
func ReadFile(path string) (*Descriptor, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	d, err := Unmarshal(data, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// WriteFile encodes d according to the extension of path, normalizing it the
// way Marshal does. The file is
// written to a temporary sibling and renamed into place, so readers never
// observe a partial descriptor.
func WriteFile(path string, d *Descriptor) error {
	f, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	data, err := Marshal(d, f)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
