package bundle

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// FormatError reports a bundle that cannot be parsed or has the wrong shape.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid bundle: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid bundle: %s", e.Reason)
}

func (e *FormatError) Unwrap() error { return e.Err }

// IsFormatError reports whether err is or wraps a *FormatError.
func IsFormatError(err error) bool {
	var fe *FormatError
	return errors.As(err, &fe)
}

// Decode parses data into a Bundle after checking its structure:
// metadata must be an object, todos an array, settings an object if
// present, and the format version one this build understands. Every
// record must pass schema validation.
func Decode(data []byte) (*Bundle, error) {
	if err := checkShape(data); err != nil {
		return nil, err
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, &FormatError{Reason: "cannot decode", Err: err}
	}
	if b.Metadata.Version == 0 {
		b.Metadata.Version = 1
		if v := gjson.GetBytes(data, "metadata.version"); v.Exists() {
			b.Metadata.Version = int(v.Int())
		}
	}
	if b.Settings == nil {
		b.Settings = map[string]json.RawMessage{}
	}

	for i := range b.Todos {
		if err := b.Todos[i].Validate(); err != nil {
			return nil, &FormatError{Reason: fmt.Sprintf("todos[%d] is not a valid task record", i), Err: err}
		}
	}
	return &b, nil
}

func checkShape(data []byte) error {
	if !gjson.ValidBytes(data) {
		return &FormatError{Reason: "not valid JSON"}
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return &FormatError{Reason: "top level must be an object"}
	}

	meta := root.Get("metadata")
	if !meta.Exists() {
		return &FormatError{Reason: "missing metadata"}
	}
	if !meta.IsObject() {
		return &FormatError{Reason: "metadata must be an object"}
	}

	todos := root.Get("todos")
	if !todos.Exists() {
		return &FormatError{Reason: "missing todos"}
	}
	if !todos.IsArray() {
		return &FormatError{Reason: "todos must be an array"}
	}
	for i, item := range todos.Array() {
		if !item.IsObject() {
			return &FormatError{Reason: fmt.Sprintf("todos[%d] must be an object", i)}
		}
	}

	if settings := root.Get("settings"); settings.Exists() && !settings.IsObject() && settings.Type != gjson.Null {
		return &FormatError{Reason: "settings must be an object"}
	}

	for _, field := range []string{"deviceId", "deviceName", "lastSyncAt"} {
		if v := meta.Get(field); v.Exists() && v.Type != gjson.String {
			return &FormatError{Reason: fmt.Sprintf("metadata.%s must be a string", field)}
		}
	}

	// version is accepted as an alias of formatVersion.
	for _, field := range []string{"formatVersion", "version"} {
		v := meta.Get(field)
		if !v.Exists() {
			continue
		}
		if v.Type != gjson.Number || v.Num != math.Trunc(v.Num) {
			return &FormatError{Reason: fmt.Sprintf("metadata.%s must be an integer", field)}
		}
		if v.Num < 1 || v.Num > FormatVersion {
			return &FormatError{Reason: fmt.Sprintf("unsupported bundle version %v (supported: 1-%d)", v.Num, FormatVersion)}
		}
	}
	return nil
}
