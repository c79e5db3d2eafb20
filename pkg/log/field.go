package log

import "time"

// Context keys used for common fields.
const (
	ComponentKey = "component"
	OperationKey = "operation"
	ErrorKey     = "error"
)

// Field is a single key/value pair attached to a log entry.
type Field struct {
	Key   string
	Value any
}

func Str(key, value string) Field               { return Field{Key: key, Value: value} }
func Int(key string, value int) Field           { return Field{Key: key, Value: value} }
func Int64(key string, value int64) Field       { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field     { return Field{Key: key, Value: value} }
func Bool(key string, value bool) Field         { return Field{Key: key, Value: value} }
func Dur(key string, value time.Duration) Field { return Field{Key: key, Value: value} }
func Any(key string, value any) Field           { return Field{Key: key, Value: value} }
func Strs(key string, value []string) Field     { return Field{Key: key, Value: value} }

// Err attaches an error under the "error" key.
func Err(err error) Field { return Field{Key: ErrorKey, Value: err} }

// Component tags an entry with the emitting component.
func Component(name string) Field { return Field{Key: ComponentKey, Value: name} }

// Operation tags an entry with the operation in progress.
func Operation(name string) Field { return Field{Key: OperationKey, Value: name} }
