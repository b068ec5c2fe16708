package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Options reads adapter options from a definitions file into typed config
// fields. Only declared keys are accepted; scalar values are coerced with the
// Convert* helpers and every problem is collected for Err.
type Options struct {
	raw  map[string]interface{}
	seen map[string]bool
	errs []error
}

func NewOptions(raw map[string]interface{}) *Options {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	return &Options{raw: raw, seen: map[string]bool{}}
}

func (o *Options) lookup(key string) (interface{}, bool) {
	o.seen[key] = true
	v, ok := o.raw[key]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func (o *Options) fail(key string, err error) {
	o.errs = append(o.errs, fmt.Errorf("option %q: %w", key, err))
}

// String sets *dst when key is present.
func (o *Options) String(key string, dst *string) *Options {
	if v, ok := o.lookup(key); ok {
		s, err := ConvertToString(v)
		if err != nil {
			o.fail(key, err)
		} else {
			*dst = s
		}
	}
	return o
}

// RequiredString is String plus a presence check.
func (o *Options) RequiredString(key string, dst *string) *Options {
	o.String(key, dst)
	if strings.TrimSpace(*dst) == "" {
		o.fail(key, errors.New("required"))
	}
	return o
}

func (o *Options) Int(key string, dst *int) *Options {
	if v, ok := o.lookup(key); ok {
		n, err := ConvertToInt(v)
		if err != nil {
			o.fail(key, err)
		} else {
			*dst = n
		}
	}
	return o
}

func (o *Options) Bool(key string, dst *bool) *Options {
	if v, ok := o.lookup(key); ok {
		b, err := ConvertToBool(v)
		if err != nil {
			o.fail(key, err)
		} else {
			*dst = b
		}
	}
	return o
}

// Strings accepts a list or a comma separated string.
func (o *Options) Strings(key string, dst *[]string) *Options {
	v, ok := o.lookup(key)
	if !ok {
		return o
	}
	switch list := v.(type) {
	case []interface{}:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, err := ConvertToString(item)
			if err != nil {
				o.fail(key, err)
				return o
			}
			out = append(out, s)
		}
		*dst = out
	case []string:
		*dst = append([]string(nil), list...)
	default:
		s, err := ConvertToString(v)
		if err != nil {
			o.fail(key, err)
			return o
		}
		var out []string
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		*dst = out
	}
	return o
}

// Decode unmarshals a nested (non scalar) value into dst. No coercion is
// applied; the structure must match dst.
func (o *Options) Decode(key string, dst interface{}) *Options {
	v, ok := o.lookup(key)
	if !ok {
		return o
	}
	b, err := json.Marshal(v)
	if err != nil {
		o.fail(key, err)
		return o
	}
	if err := json.Unmarshal(b, dst); err != nil {
		o.fail(key, err)
	}
	return o
}

// Err reports coercion failures and keys that no accessor declared.
func (o *Options) Err() error {
	var unknown []string
	for key := range o.raw {
		if !o.seen[key] {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	errs := append([]error(nil), o.errs...)
	for _, key := range unknown {
		errs = append(errs, fmt.Errorf("option %q: unknown", key))
	}
	return errors.Join(errs...)
}
