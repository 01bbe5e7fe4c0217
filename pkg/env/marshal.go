// Package env writes structs tagged for caarlos0/env back out as .env files.
package env

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// MarshalEnv renders the `env`-tagged fields of the struct c points to as
// KEY=value lines in field order. Embedded structs are flattened, zero
// values are skipped and slices are joined with the field's envSeparator
// (default ",").
func MarshalEnv(c any) (string, error) {
	v := reflect.ValueOf(c)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return "", fmt.Errorf("env: expected pointer to struct, got %T", c)
	}

	var sb strings.Builder
	if err := marshalStruct(&sb, v.Elem()); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func marshalStruct(sb *strings.Builder, v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field, val := t.Field(i), v.Field(i)

		if field.Anonymous && val.Kind() == reflect.Struct {
			if err := marshalStruct(sb, val); err != nil {
				return err
			}
			continue
		}

		key, _, _ := strings.Cut(field.Tag.Get("env"), ",")
		if key == "" || !field.IsExported() || val.IsZero() {
			continue
		}

		s, err := formatValue(val, field.Tag.Get("envSeparator"))
		if err != nil {
			return fmt.Errorf("env: field %s: %w", field.Name, err)
		}
		fmt.Fprintf(sb, "%s=%s\n", key, quote(s))
	}
	return nil
}

func formatValue(v reflect.Value, sep string) (string, error) {
	switch v.Kind() {
	case reflect.String:
		return v.String(), nil
	case reflect.Bool:
		return strconv.FormatBool(v.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, v.Type().Bits()), nil
	case reflect.Slice:
		if sep == "" {
			sep = ","
		}
		parts := make([]string, v.Len())
		for i := range parts {
			p, err := formatValue(v.Index(i), "")
			if err != nil {
				return "", err
			}
			parts[i] = p
		}
		return strings.Join(parts, sep), nil
	default:
		return "", fmt.Errorf("unsupported kind %s", v.Kind())
	}
}

// quote wraps values godotenv would otherwise split or truncate.
func quote(s string) string {
	if !strings.ContainsAny(s, " #\"'\n\t=") {
		return s
	}
	return strconv.Quote(s)
}
