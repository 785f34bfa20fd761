package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/PZwoodcat/Oleppy-Free/internal/faults"
)

// EnvPrefix is prepended to every `env` tag when reading the environment.
const EnvPrefix = "OLEPPY_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig loads configuration with proper precedence: CLI args > env vars > config file.
// opts must be a pointer to a struct; its string field named Config holds the
// TOML path. If cmd is provided, flags explicitly set via CLI are not overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	rv := reflect.ValueOf(opts)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		return faults.New(faults.KindUsage, faults.CodeInvalidConfig, "options must be a pointer to a struct")
	}
	v := rv.Elem()
	t := v.Type()

	changedFlags := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if f.Changed {
				changedFlags[f.Name] = true
			}
		})
	}

	var configPath string
	if f := v.FieldByName("Config"); f.IsValid() && f.Kind() == reflect.String {
		configPath = f.String()
	}

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			var doc map[string]any
			if err := toml.Unmarshal(data, &doc); err != nil {
				return faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "failed to parse TOML config", err).
					With("path", configPath)
			}
			for i := 0; i < v.NumField(); i++ {
				sf := t.Field(i)
				if changedFlags[fieldNameToFlag(sf.Name)] {
					continue
				}
				tomlPath := sf.Tag.Get("toml")
				if tomlPath == "" {
					continue
				}
				value := getNestedValue(doc, tomlPath)
				if value == nil {
					continue
				}
				if err := setFieldValue(v.Field(i), value); err != nil {
					return faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "invalid config value", err).
						With("key", tomlPath)
				}
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	for i := 0; i < v.NumField(); i++ {
		sf := t.Field(i)
		if changedFlags[fieldNameToFlag(sf.Name)] {
			continue
		}
		envKey := sf.Tag.Get("env")
		if envKey == "" {
			continue
		}
		envValue, ok := os.LookupEnv(EnvPrefix + envKey)
		if !ok || envValue == "" {
			continue
		}
		if err := setFieldValueFromString(v.Field(i), envValue); err != nil {
			return faults.Wrap(faults.KindFatalConfig, faults.CodeInvalidConfig, "invalid environment value", err).
				With("env", EnvPrefix+envKey)
		}
	}

	return nil
}

// fieldNameToFlag converts a struct field name to a CLI flag name.
// Example: "LoggingLevel" -> "logging-level", "Port" -> "port".
func fieldNameToFlag(fieldName string) string {
	var result []rune
	for i, r := range fieldName {
		if i > 0 && unicode.IsUpper(r) {
			result = append(result, '-')
		}
		result = append(result, unicode.ToLower(r))
	}
	return string(result)
}

// getNestedValue retrieves a value from nested map using dot notation.
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	current := data

	for i, part := range parts {
		if i == len(parts)-1 {
			return current[part]
		}
		next, ok := current[part].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

// setFieldValue assigns a decoded TOML value to a field.
func setFieldValue(field reflect.Value, value any) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		switch d := value.(type) {
		case string:
			parsed, err := time.ParseDuration(d)
			if err != nil {
				return err
			}
			field.SetInt(int64(parsed))
		case int64:
			field.SetInt(d * int64(time.Second))
		case float64:
			field.SetInt(int64(d * float64(time.Second)))
		default:
			return fmt.Errorf("cannot use %T as duration", value)
		}
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("cannot use %T as string", value)
		}
		field.SetString(s)
	case reflect.Bool:
		b, ok := value.(bool)
		if !ok {
			return fmt.Errorf("cannot use %T as bool", value)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64, reflect.Int32:
		switch i := value.(type) {
		case int64:
			field.SetInt(i)
		case int:
			field.SetInt(int64(i))
		default:
			return fmt.Errorf("cannot use %T as integer", value)
		}
	case reflect.Float64, reflect.Float32:
		switch f := value.(type) {
		case float64:
			field.SetFloat(f)
		case int64:
			field.SetFloat(float64(f))
		default:
			return fmt.Errorf("cannot use %T as float", value)
		}
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		arr, ok := value.([]any)
		if !ok {
			return fmt.Errorf("cannot use %T as list", value)
		}
		slice := make([]string, len(arr))
		for i, item := range arr {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("list item %d: cannot use %T as string", i, item)
			}
			slice[i] = s
		}
		field.Set(reflect.ValueOf(slice))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// setFieldValueFromString sets a field value from string (for env vars).
func setFieldValueFromString(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64, reflect.Int32:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float64, reflect.Float32:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		// Comma-separated
		parts := strings.Split(value, ",")
		slice := make([]string, len(parts))
		for i, part := range parts {
			slice[i] = strings.TrimSpace(part)
		}
		field.Set(reflect.ValueOf(slice))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}
