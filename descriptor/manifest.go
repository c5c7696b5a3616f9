package descriptor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// Manifest is a module's package manifest. Downstream modules read its
// capability flags before compiling optional integration code.
type Manifest struct {
	Name         string       `yaml:"name" toml:"name" json:"name"`
	Version      string       `yaml:"version" toml:"version" json:"version"`
	Dependencies []Dependency `yaml:"dependencies,omitempty" toml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// Dependency is an optional integration target. Its flag is set when Module
// is installed at MinVersion or later.
type Dependency struct {
	Module     string `yaml:"module" toml:"module" json:"module"`
	MinVersion string `yaml:"min_version,omitempty" toml:"min_version,omitempty" json:"min_version,omitempty"`
	Flag       string `yaml:"flag,omitempty" toml:"flag,omitempty" json:"flag,omitempty"`
}

// FlagName returns the explicit flag, or HAS_<MODULE> derived from the
// module name.
func (d Dependency) FlagName() string {
	if d.Flag != "" {
		return d.Flag
	}
	var b strings.Builder
	b.WriteString("HAS_")
	for _, r := range d.Module {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Validate checks the manifest name and that every version is a valid
// semantic version ("1.2.3" and "v1.2.3" are both accepted).
func (m *Manifest) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, ErrManifestNameMissing)
	}
	if m.Version != "" && !semver.IsValid(canonicalVersion(m.Version)) {
		errs = append(errs, fmt.Errorf("%w: manifest version %q", ErrInvalidVersion, m.Version))
	}
	for _, dep := range m.Dependencies {
		if dep.MinVersion != "" && !semver.IsValid(canonicalVersion(dep.MinVersion)) {
			errs = append(errs, fmt.Errorf("%w: %s min_version %q", ErrInvalidVersion, dep.Module, dep.MinVersion))
		}
	}
	return errors.Join(errs...)
}

// CapabilityFlags evaluates every dependency against the installed module
// versions (module name to version). A flag is true when the module is
// present and its version is at least MinVersion; an empty MinVersion only
// requires presence. Invalid installed versions never satisfy a minimum.
func (m *Manifest) CapabilityFlags(installed map[string]string) map[string]bool {
	flags := make(map[string]bool, len(m.Dependencies))
	for _, dep := range m.Dependencies {
		name := dep.FlagName()
		have, ok := installed[dep.Module]
		if !ok {
			if _, seen := flags[name]; !seen {
				flags[name] = false
			}
			continue
		}
		set := dep.MinVersion == ""
		if !set {
			hv, mv := canonicalVersion(have), canonicalVersion(dep.MinVersion)
			set = semver.IsValid(hv) && semver.IsValid(mv) && semver.Compare(hv, mv) >= 0
		}
		flags[name] = flags[name] || set
	}
	return flags
}

func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return v
}

// LoadManifest reads a manifest from a YAML, TOML or JSON file.
func LoadManifest(path string) (*Manifest, error) {
	f, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	if f == FormatMarkdown {
		return nil, fmt.Errorf("%w: manifest cannot be %s", ErrUnsupportedFormat, f)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var m Manifest
	switch f {
	case FormatYAML:
		err = yaml.Unmarshal(data, &m)
	case FormatTOML:
		_, err = toml.Decode(string(data), &m)
	case FormatJSON:
		err = json.Unmarshal(data, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}
	return &m, nil
}
