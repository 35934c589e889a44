package node

import "fmt"

// MissingError is returned when a node id is not present in the applier.
type MissingError struct {
	ID ID
}

func (e MissingError) Error() string {
	return fmt.Sprintf("node %d missing from applier", e.ID)
}

// TypeMismatchError is returned when a node exists but does not have the
// expected concrete type.
type TypeMismatchError struct {
	ID       ID
	Expected string
}

func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("node %d is not a %s", e.ID, e.Expected)
}

// MissingContextError is returned when an operation requires a runtime
// dependency that is absent, such as subcomposition without a runtime handle.
type MissingContextError struct {
	ID     ID
	Reason string
}

func (e MissingContextError) Error() string {
	return fmt.Sprintf("node %d: missing context: %s", e.ID, e.Reason)
}
