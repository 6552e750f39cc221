package dds

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Config carries the process-level settings of the safety layer.
//
// Every field can be overridden from the environment as DDS_{FIELD}, with
// the field name in UPPER_SNAKE_CASE unless an env tag names it:
//
//	DDS_DOMAIN_ID=3
//	DDS_READ_BATCH=64
//	DDS_LISTENER_LOG_RATE=0.5
type Config struct {
	// DomainID is the domain participants join unless the builder overrides it.
	DomainID uint32 `env:"DOMAIN_ID"`

	// ReadBatchSize bounds how many samples one Take or Read returns.
	ReadBatchSize int `env:"READ_BATCH"`

	// ListenerErrorLogsPerSecond bounds how often a panicking listener is
	// logged. Zero or negative disables the bound. The bound is process-wide:
	// every participant build applies its value to all participants.
	ListenerErrorLogsPerSecond float64 `env:"LISTENER_LOG_RATE"`
}

// DefaultConfig returns the built-in settings.
func DefaultConfig() Config {
	return Config{
		DomainID:                   0,
		ReadBatchSize:              256,
		ListenerErrorLogsPerSecond: 1,
	}
}

// Validate reports settings the runtime cannot honour.
func (c Config) Validate() error {
	if c.DomainID > 232 {
		return fmt.Errorf("%w: domain id %d out of range [0, 232]", ErrBadParameter, c.DomainID)
	}
	if c.ReadBatchSize <= 0 {
		return fmt.Errorf("%w: read batch size must be > 0", ErrBadParameter)
	}
	return nil
}

// ConfigFromEnv overlays DDS_* environment variables on DefaultConfig.
func ConfigFromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := loadEnv("DDS", &cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

var durationType = reflect.TypeOf(time.Duration(0))

// loadEnv sets the fields of the struct dst points to from the variables
// lookup finds. Fields without a variable keep their value.
func loadEnv(prefix string, dst any, lookup func(string) (string, bool)) error {
	v := reflect.ValueOf(dst)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("config: dst must be a pointer to a struct, got %T", dst)
	}
	v = v.Elem()
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := field.Tag.Get("env")
		if name == "" {
			name = toUpperSnake(field.Name)
		}
		key := prefix + "_" + name
		raw, ok := lookup(key)
		if !ok {
			continue
		}
		if err := setField(v.Field(i), raw, key); err != nil {
			return err
		}
	}
	return nil
}

func setField(fv reflect.Value, raw, key string) error {
	if fv.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		fv.SetInt(int64(d))
		return nil
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		fv.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		fv.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		fv.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, fv.Type().Bits())
		if err != nil {
			return fmt.Errorf("config: %s: %w", key, err)
		}
		fv.SetFloat(f)
	default:
		return fmt.Errorf("config: %s: unsupported field kind %s", key, fv.Kind())
	}
	return nil
}

// toUpperSnake converts CamelCase to UPPER_SNAKE_CASE.
func toUpperSnake(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToUpper(r))
	}
	return b.String()
}
