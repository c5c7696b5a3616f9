// Package feeders provides configuration feeders for reading data from
// environment variables and YAML, TOML or JSON files.
package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

// AffixedEnvFeeder reads `env` tagged fields from variables named
// PREFIX_TAG_SUFFIX. Either affix may be empty, not both.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates an AffixedEnvFeeder. Affixes are upper-cased.
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed populates structure, a pointer to a struct. Nested structs and
// non-nil struct pointers are walked with the same affixes. Unset or empty
// variables leave the field untouched.
func (f AffixedEnvFeeder) Feed(structure any) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w, got %T", ErrEnvInvalidStructure, structure)
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}
	w := envWalker{prefix: strings.ToUpper(f.Prefix), suffix: strings.ToUpper(f.Suffix)}
	return w.walk(rv.Elem(), "")
}

type envWalker struct {
	prefix, suffix string
}

func (w envWalker) walk(rv reflect.Value, path string) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		sf := rt.Field(i)
		fv := rv.Field(i)
		fieldPath := sf.Name
		if path != "" {
			fieldPath = path + "." + sf.Name
		}

		if target, ok := structTarget(fv); ok {
			if err := w.walk(target, fieldPath); err != nil {
				return err
			}
			continue
		}

		tag, ok := sf.Tag.Lookup("env")
		if !ok {
			continue
		}
		raw := os.Getenv(w.name(tag))
		if raw == "" {
			continue
		}
		if err := assign(fv, raw); err != nil {
			return fmt.Errorf("field %s from %s: %w", fieldPath, w.name(tag), err)
		}
	}
	return nil
}

func (w envWalker) name(tag string) string {
	parts := make([]string, 0, 3)
	if w.prefix != "" {
		parts = append(parts, w.prefix)
	}
	parts = append(parts, strings.ToUpper(tag))
	if w.suffix != "" {
		parts = append(parts, w.suffix)
	}
	return strings.Join(parts, "_")
}

var (
	durationType = reflect.TypeFor[time.Duration]()
	timeType     = reflect.TypeFor[time.Time]()
)

// structTarget reports whether fv is a struct to descend into.
func structTarget(fv reflect.Value) (reflect.Value, bool) {
	switch {
	case fv.Kind() == reflect.Struct && fv.Type() != timeType:
		return fv, true
	case fv.Kind() == reflect.Pointer && !fv.IsNil() && fv.Elem().Kind() == reflect.Struct:
		return fv.Elem(), true
	}
	return reflect.Value{}, false
}

func assign(fv reflect.Value, raw string) error {
	if !fv.CanSet() {
		return ErrFieldCannotBeSet
	}

	var value any
	switch {
	case fv.Type() == durationType:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEnvConversion, err)
		}
		value = d
	case fv.Kind() == reflect.Slice && fv.Type().Elem().Kind() == reflect.String:
		items := strings.Split(raw, ",")
		for i, item := range items {
			items[i] = strings.TrimSpace(item)
		}
		value = items
	default:
		converted, err := cast.FromType(raw, fv.Type())
		if err != nil {
			return fmt.Errorf("%w to %v: %w", ErrEnvConversion, fv.Type(), err)
		}
		value = converted
	}
	fv.Set(reflect.ValueOf(value).Convert(fv.Type()))
	return nil
}
