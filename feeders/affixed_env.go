package feeders

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/golobby/cast"
)

var durationType = reflect.TypeOf(time.Duration(0))

// AffixedEnvFeeder reads environment variables named PREFIX_<env tag>_SUFFIX.
// Nested structs share the same affixes.
type AffixedEnvFeeder struct {
	Prefix string
	Suffix string
}

// NewAffixedEnvFeeder creates a new AffixedEnvFeeder with the specified prefix and suffix
func NewAffixedEnvFeeder(prefix, suffix string) AffixedEnvFeeder {
	return AffixedEnvFeeder{Prefix: prefix, Suffix: suffix}
}

// Feed reads environment variables and populates the provided structure
func (f AffixedEnvFeeder) Feed(structure any) error {
	rv := reflect.ValueOf(structure)
	if rv.Kind() != reflect.Ptr || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return ErrEnvInvalidStructure
	}
	if f.Prefix == "" && f.Suffix == "" {
		return ErrEnvEmptyPrefixAndSuffix
	}

	return f.processStructFields(rv.Elem(), strings.ToUpper(f.Prefix), strings.ToUpper(f.Suffix))
}

func (f AffixedEnvFeeder) processStructFields(rv reflect.Value, prefix, suffix string) error {
	for i := 0; i < rv.NumField(); i++ {
		field := rv.Field(i)
		fieldType := rv.Type().Field(i)

		if !fieldType.IsExported() {
			continue
		}
		if err := f.processField(field, &fieldType, prefix, suffix); err != nil {
			return fmt.Errorf("error in field '%s': %w", fieldType.Name, err)
		}
	}
	return nil
}

func (f AffixedEnvFeeder) processField(field reflect.Value, fieldType *reflect.StructField, prefix, suffix string) error {
	switch {
	case field.Kind() == reflect.Struct:
		return f.processStructFields(field, prefix, suffix)
	case field.Kind() == reflect.Pointer && !field.IsNil() && field.Elem().Kind() == reflect.Struct:
		return f.processStructFields(field.Elem(), prefix, suffix)
	}

	envTag, exists := fieldType.Tag.Lookup("env")
	if !exists || envTag == "" {
		return nil
	}

	envName := strings.ToUpper(envTag)
	if prefix != "" {
		envName = prefix + "_" + envName
	}
	if suffix != "" {
		envName = envName + "_" + suffix
	}

	if envValue, ok := os.LookupEnv(envName); ok && envValue != "" {
		return setFieldValue(field, envValue)
	}
	return nil
}

// setFieldValue converts and sets a field value. Durations are parsed with
// time.ParseDuration; everything else goes through cast.
func setFieldValue(field reflect.Value, strValue string) error {
	if !field.CanSet() {
		return ErrEnvFieldCannotBeSet
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(strValue)
		if err != nil {
			return fmt.Errorf("%w %q to %v: %w", ErrEnvCannotConvert, strValue, field.Type(), err)
		}
		field.SetInt(int64(d))
		return nil
	}

	convertedValue, err := cast.FromType(strValue, field.Type())
	if err != nil {
		return fmt.Errorf("%w %q to %v: %w", ErrEnvCannotConvert, strValue, field.Type(), err)
	}

	value := reflect.ValueOf(convertedValue)
	if !value.Type().ConvertibleTo(field.Type()) {
		return fmt.Errorf("%w %q to %v", ErrEnvCannotConvert, strValue, field.Type())
	}
	field.Set(value.Convert(field.Type()))
	return nil
}
