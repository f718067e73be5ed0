// core/errors.go
package core

import (
	"errors"
	"fmt"
)

// Sentinel causes for the error types below. Callers branch with errors.Is.
var (
	ErrDuplicateNode    = errors.New("duplicate node name")
	ErrUnknownNode      = errors.New("unknown node name")
	ErrCyclicConnect    = errors.New("graph cannot be connected as its own ancestor")
	ErrUnknownModel     = errors.New("unknown lidar model")
	ErrEmptyRayTemplate = errors.New("ray template is empty")
	ErrMissingScene     = errors.New("scene backend is not configured")
)

// GraphStructureError reports an illegal node-graph mutation: duplicate or
// unknown node names, or an illegal reconnection. These are programming
// errors in configuration-application code, raised at the point of mutation
// so a bad configuration never silently corrupts a running graph.
type GraphStructureError struct {
	Graph string
	Node  string
	Err   error
}

func (e *GraphStructureError) Error() string {
	if e.Node == "" {
		return fmt.Sprintf("graph %q: %v", e.Graph, e.Err)
	}
	return fmt.Sprintf("graph %q: node %q: %v", e.Graph, e.Node, e.Err)
}

func (e *GraphStructureError) Unwrap() error { return e.Err }

// ConfigurationError is fatal for the affected sensor's activation: unknown
// model ids, empty ray-range sets, missing collaborators. Other sensors are
// unaffected.
type ConfigurationError struct {
	Sensor string
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("sensor %q: %v", e.Sensor, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ValidationMismatch records one field where the live configuration differs
// from the model's canonical default. Mismatches are non-fatal: the
// simulation proceeds with the (intentionally) modified configuration and the
// controller merely logs them.
type ValidationMismatch struct {
	Field string
	Want  string
	Got   string
}

func (m ValidationMismatch) String() string {
	return fmt.Sprintf("%s: configured %s, model default %s", m.Field, m.Got, m.Want)
}
