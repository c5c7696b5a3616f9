package modlink

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// Struct tag keys
	tagDefault  = "default"
	tagRequired = "required"
	tagDesc     = "desc"
)

// Config holds host and tooling settings. Values come from defaults, then
// each feeder in order (files, then environment).
type Config struct {
	CorpusDir       string        `yaml:"corpus_dir" toml:"corpus_dir" json:"corpus_dir" env:"CORPUS_DIR" default:"integration" desc:"Directory holding integration descriptors"`
	LogLevel        string        `yaml:"log_level" toml:"log_level" json:"log_level" env:"LOG_LEVEL" default:"info" desc:"debug, info, warn or error"`
	LogFormat       string        `yaml:"log_format" toml:"log_format" json:"log_format" env:"LOG_FORMAT" default:"text" desc:"text or json"`
	SessionSchedule string        `yaml:"session_schedule" toml:"session_schedule" json:"session_schedule" env:"SESSION_SCHEDULE" desc:"Cron expression rotating sessions; empty disables rotation"`
	HTTPAddr        string        `yaml:"http_addr" toml:"http_addr" json:"http_addr" env:"HTTP_ADDR" default:":8089" desc:"Listen address of the inspection server"`
	StopTimeout     time.Duration `yaml:"stop_timeout" toml:"stop_timeout" json:"stop_timeout" env:"STOP_TIMEOUT" default:"30s" desc:"Upper bound for stopping all modules"`
}

// Validate implements ConfigValidator.
func (c *Config) Validate() error {
	var errs []error
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.LogLevel)) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogLevel, c.LogLevel))
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(c.LogFormat)) {
		errs = append(errs, fmt.Errorf("%w: %q", ErrInvalidLogFormat, c.LogFormat))
	}
	if c.SessionSchedule != "" {
		if _, err := cron.ParseStandard(c.SessionSchedule); err != nil {
			errs = append(errs, fmt.Errorf("%w: %q: %w", ErrInvalidSessionSchedule, c.SessionSchedule, err))
		}
	}
	return errors.Join(errs...)
}

// ConfigValidator is implemented by configuration structs with rules beyond
// required fields. LoadConfig calls Validate after feeding.
type ConfigValidator interface {
	Validate() error
}

// Feeder populates a configuration struct from one source.
type Feeder interface {
	Feed(structure any) error
}

// LoadConfig applies defaults, runs every feeder in order, then checks
// required fields and custom validation.
func LoadConfig(cfg any, feeders ...Feeder) error {
	if err := ProcessConfigDefaults(cfg); err != nil {
		return err
	}
	for _, f := range feeders {
		if err := f.Feed(cfg); err != nil {
			return fmt.Errorf("config feeder %T: %w", f, err)
		}
	}
	if err := ValidateConfigRequired(cfg); err != nil {
		return err
	}
	if v, ok := cfg.(ConfigValidator); ok {
		if err := v.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrConfigValidationFailed, err)
		}
	}
	return nil
}

func structValue(cfg any) (reflect.Value, error) {
	if cfg == nil {
		return reflect.Value{}, ErrConfigNil
	}
	v := reflect.ValueOf(cfg)
	if v.Kind() != reflect.Pointer {
		return reflect.Value{}, ErrConfigNotPointer
	}
	if v.IsNil() {
		return reflect.Value{}, ErrConfigNil
	}
	v = v.Elem()
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, ErrConfigNotStruct
	}
	return v, nil
}

// leafFields calls visit for every non-struct field of v, descending into
// nested structs. path is the dotted Go field path.
func leafFields(v reflect.Value, path string, visit func(field reflect.Value, sf reflect.StructField, path string) error) error {
	t := v.Type()
	for i := range t.NumField() {
		sf := t.Field(i)
		field := v.Field(i)
		fieldPath := path + sf.Name
		if field.Kind() == reflect.Struct && field.Type() != timeType {
			if err := leafFields(field, fieldPath+".", visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(field, sf, fieldPath); err != nil {
			return err
		}
	}
	return nil
}

// ProcessConfigDefaults sets fields tagged `default:"..."` that are still
// zero. Nested structs are processed recursively.
func ProcessConfigDefaults(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	return leafFields(v, "", func(field reflect.Value, sf reflect.StructField, path string) error {
		raw, ok := sf.Tag.Lookup(tagDefault)
		if !ok || !field.CanSet() || !field.IsZero() {
			return nil
		}
		value, err := parseTagValue(raw, field.Type())
		if err != nil {
			return fmt.Errorf("%w: field %s: %w", ErrDefaultValueParseError, path, err)
		}
		field.Set(value)
		return nil
	})
}

var (
	durationType = reflect.TypeFor[time.Duration]()
	timeType     = reflect.TypeFor[time.Time]()
)

// parseTagValue converts a tag literal to typ. Durations use Go syntax and
// string slices are comma separated.
func parseTagValue(raw string, typ reflect.Type) (reflect.Value, error) {
	switch {
	case typ == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return reflect.Value{}, err
		}
		return reflect.ValueOf(d), nil
	case typ.Kind() == reflect.Slice && typ.Elem().Kind() == reflect.String:
		items := strings.Split(raw, ",")
		for i, item := range items {
			items[i] = strings.TrimSpace(item)
		}
		return reflect.ValueOf(items).Convert(typ), nil
	}
	converted, err := cast.FromType(raw, typ)
	if err != nil {
		return reflect.Value{}, err
	}
	return reflect.ValueOf(converted).Convert(typ), nil
}

// ValidateConfigRequired reports every field tagged `required:"true"` that is
// still zero.
func ValidateConfigRequired(cfg any) error {
	v, err := structValue(cfg)
	if err != nil {
		return err
	}
	var missing []string
	_ = leafFields(v, "", func(field reflect.Value, sf reflect.StructField, path string) error {
		if sf.Tag.Get(tagRequired) == "true" && field.IsZero() {
			missing = append(missing, path)
		}
		return nil
	})
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigRequiredFieldMissing, strings.Join(missing, ", "))
	}
	return nil
}

// GenerateSampleConfig renders cfg with its defaults applied in the given
// format (yaml, toml or json).
func GenerateSampleConfig(cfg any, format string) ([]byte, error) {
	if err := ProcessConfigDefaults(cfg); err != nil {
		return nil, err
	}
	switch strings.ToLower(format) {
	case "yaml", "yml":
		return yaml.Marshal(cfg)
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "json":
		return json.MarshalIndent(cfg, "", "  ")
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ConfigFieldDocs lists `desc` tags by yaml key, for help output.
func ConfigFieldDocs(cfg any) map[string]string {
	docs := make(map[string]string)
	v, err := structValue(cfg)
	if err != nil {
		return docs
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		key, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if key == "" {
			key = f.Name
		}
		if desc := f.Tag.Get(tagDesc); desc != "" {
			docs[key] = desc
		}
	}
	return docs
}
