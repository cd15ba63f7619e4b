package component

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/OpenRTM/RTM-Tutorial-sub001/errors"
)

// Limits applied to component names and factory configuration
const (
	MaxNameLength   = 256
	MaxStringLength = 1024
	MaxJSONSize     = 1024 * 1024
	MaxJSONDepth    = 10
	MaxArraySize    = 1000
)

// ValidateComponentName accepts names made of letters, digits, '-', '_' and '.'
func ValidateComponentName(name string) error {
	if name == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Validation", "ValidateComponentName", "empty name")
	}
	if len(name) > MaxNameLength {
		return errors.WrapInvalid(
			fmt.Errorf("%w: name longer than %d", errors.ErrInvalidConfig, MaxNameLength),
			"Validation", "ValidateComponentName", "length check")
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return errors.WrapInvalid(
				fmt.Errorf("%w: invalid character %q in %q", errors.ErrInvalidConfig, r, name),
				"Validation", "ValidateComponentName", "character check")
		}
	}
	return nil
}

// ValidateFactoryConfig checks raw factory configuration against the size,
// depth and content limits before any factory sees it.
func ValidateFactoryConfig(raw json.RawMessage) error {
	if len(raw) > MaxJSONSize {
		return errors.WrapInvalid(
			fmt.Errorf("config size %d exceeds maximum %d", len(raw), MaxJSONSize),
			"Validation", "ValidateFactoryConfig", "size check")
	}
	if len(raw) == 0 {
		return nil
	}
	var v any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&v); err != nil {
		return errors.WrapInvalid(err, "Validation", "ValidateFactoryConfig", "JSON parsing")
	}
	return checkValue(v, 0)
}

func checkValue(value any, depth int) error {
	if depth > MaxJSONDepth {
		return errors.WrapInvalid(
			fmt.Errorf("JSON depth %d exceeds maximum %d", depth, MaxJSONDepth),
			"Validation", "checkValue", "depth check")
	}
	switch val := value.(type) {
	case string:
		return checkString(val)
	case json.Number:
		if _, err := val.Float64(); err != nil {
			return errors.WrapInvalid(err, "Validation", "checkValue", "number check")
		}
	case []any:
		if len(val) > MaxArraySize {
			return errors.WrapInvalid(
				fmt.Errorf("array size %d exceeds maximum %d", len(val), MaxArraySize),
				"Validation", "checkValue", "array size check")
		}
		for i, elem := range val {
			if err := checkValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "Validation", "checkValue", fmt.Sprintf("element %d", i))
			}
		}
	case map[string]any:
		for k, elem := range val {
			if err := checkString(k); err != nil {
				return errors.Wrap(err, "Validation", "checkValue", "key check")
			}
			if err := checkValue(elem, depth+1); err != nil {
				return errors.Wrap(err, "Validation", "checkValue", fmt.Sprintf("field %q", k))
			}
		}
	case bool, nil:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("unexpected type %T", value), "Validation", "checkValue", "type check")
	}
	return nil
}

func checkString(s string) error {
	if len(s) > MaxStringLength {
		return errors.WrapInvalid(
			fmt.Errorf("string length %d exceeds maximum %d", len(s), MaxStringLength),
			"Validation", "checkString", "length check")
	}
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return errors.WrapInvalid(
				fmt.Errorf("control character 0x%02x", r),
				"Validation", "checkString", "control character check")
		}
	}
	return nil
}

// Validatable is implemented by factory configs that check themselves
type Validatable interface {
	Validate() error
}

// SafeUnmarshal validates raw, decodes it into target and runs
// target.Validate when target is Validatable. Empty input leaves target
// untouched.
func SafeUnmarshal(raw json.RawMessage, target any) error {
	if err := ValidateFactoryConfig(raw); err != nil {
		return errors.Wrap(err, "Validation", "SafeUnmarshal", "config validation")
	}
	if reflect.TypeOf(target).Kind() != reflect.Pointer {
		return errors.WrapInvalid(
			fmt.Errorf("target must be a pointer, got %T", target),
			"Validation", "SafeUnmarshal", "target type check")
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, target); err != nil {
			return errors.WrapInvalid(err, "Validation", "SafeUnmarshal", "JSON decoding")
		}
	}
	if v, ok := target.(Validatable); ok {
		if err := v.Validate(); err != nil {
			return errors.Wrap(err, "Validation", "SafeUnmarshal", "struct validation")
		}
	}
	return nil
}
