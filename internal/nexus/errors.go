package nexus

import (
	"errors"
	"fmt"
)

var (
	ErrNodeUnreachable = errors.New("node unreachable")
	ErrBackendError    = errors.New("backend reported an error")
)

// UnreachableError is a transport failure talking to one node.
type UnreachableError struct {
	Node string
	Err  error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("Node %s is unreachable: %v", e.Node, e.Err)
}

func (e *UnreachableError) Unwrap() []error { return []error{ErrNodeUnreachable, e.Err} }

type HTTPStatusError struct {
	Node   string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("Node %s returned HTTP %d", e.Node, e.Status)
}

// NotReadyError means the node answered but is still indexing.
type NotReadyError struct {
	Node  string
	State string
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("Node %s is not ready. State: %s", e.Node, e.State)
}

// BackendError is a structured error line emitted inside a result stream.
type BackendError struct {
	Node    string
	Message string
}

func (e *BackendError) Error() string {
	return "Backend Error: " + e.Message
}

func (e *BackendError) Unwrap() error { return ErrBackendError }
