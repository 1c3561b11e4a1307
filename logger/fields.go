package logger

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ZapField wraps a zap.Field and implements the Field interface
type ZapField struct {
	zapField zap.Field
}

// Key returns the field's key
func (f ZapField) Key() string {
	return f.zapField.Key
}

// Value returns the field's value
func (f ZapField) Value() interface{} {
	return f.zapField.Interface
}

// ZapField returns the underlying zap.Field
func (f ZapField) ZapField() zap.Field {
	return f.zapField
}

// LazyField represents a field that evaluates its value lazily
type LazyField struct {
	key       string
	valueFunc func() interface{}
}

func (f LazyField) Key() string {
	return f.key
}

func (f LazyField) Value() interface{} {
	return f.valueFunc()
}

func (f LazyField) ZapField() zap.Field {
	return zap.Any(f.key, f.valueFunc())
}

// Field constructors
var (
	String = func(key, val string) Field {
		return ZapField{zap.String(key, val)}
	}

	Int = func(key string, val int) Field {
		return ZapField{zap.Int(key, val)}
	}

	Int64 = func(key string, val int64) Field {
		return ZapField{zap.Int64(key, val)}
	}

	Bool = func(key string, val bool) Field {
		return ZapField{zap.Bool(key, val)}
	}

	Duration = func(key string, val time.Duration) Field {
		return ZapField{zap.Duration(key, val)}
	}

	Error = func(err error) Field {
		return ZapField{zap.Error(err)}
	}

	Stringer = func(key string, val fmt.Stringer) Field {
		return ZapField{zap.Stringer(key, val)}
	}

	Strings = func(key string, val []string) Field {
		return ZapField{zap.Strings(key, val)}
	}

	Any = func(key string, val interface{}) Field {
		return ZapField{zap.Any(key, val)}
	}

	Lazy = func(key string, valueFunc func() interface{}) Field {
		return LazyField{key: key, valueFunc: valueFunc}
	}
)

// Domain field constructors
var (
	Capability = func(identity string) Field {
		return String("capability", identity)
	}

	Implementation = func(identity string) Field {
		return String("implementation", identity)
	}

	ComponentID = func(id string) Field {
		return String("component_id", id)
	}

	Module = func(name string) Field {
		return String("module", name)
	}
)

// FieldsToZap converts Field slice to zap.Field slice
func FieldsToZap(fields []Field) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		if field == nil {
			continue
		}
		zapFields = append(zapFields, field.ZapField())
	}
	return zapFields
}
