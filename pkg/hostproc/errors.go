package hostproc

import "fmt"

// BinaryNotFoundError is returned by NewRunner when the named executable
// cannot be resolved on the system search path.
type BinaryNotFoundError struct {
	Name string
}

func (e *BinaryNotFoundError) Error() string {
	return fmt.Sprintf("binary not found in PATH: %q", e.Name)
}

// InvalidArgumentError is returned when a command argument is neither a
// string nor a list of strings, or cannot be lexed as a shell command.
type InvalidArgumentError struct {
	Value any
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("command must be a string or a list of strings, found: %v (%T)", e.Value, e.Value)
}
