package slugbuild

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/dynroute/internal/core/routing"
)

var (
	// ErrSiteMismatch is returned when the node does not belong to the
	// policy's site.
	ErrSiteMismatch = errors.New("node belongs to another site")

	// ErrReadOnlyBuild is returned when committing a checking-only tree.
	ErrReadOnlyBuild = errors.New("checking-only builds cannot be committed")
)

// BuildError wraps a storage or template failure with the node and the
// operation that failed.
type BuildError struct {
	NodeID string
	Op     string
	Err    error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("slug build %s node %s: %v", e.Op, e.NodeID, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

func buildErr(nodeID, op string, err error) error {
	var be *BuildError
	if errors.As(err, &be) {
		return err
	}
	return &BuildError{NodeID: nodeID, Op: op, Err: err}
}

// FatalConflictError is returned when collisions were found and the
// conflict mode does not allow resolving them. Nothing has been written.
type FatalConflictError struct {
	Conflicts []routing.ConflictReport
}

func (e *FatalConflictError) Error() string {
	if len(e.Conflicts) == 1 {
		return "slug conflict: " + e.Conflicts[0].String()
	}
	parts := make([]string, 0, len(e.Conflicts))
	for _, c := range e.Conflicts {
		parts = append(parts, c.String())
	}
	return fmt.Sprintf("%d slug conflicts: %s", len(e.Conflicts), strings.Join(parts, "; "))
}

// IsFatalConflict reports whether err is a FatalConflictError and returns it.
func IsFatalConflict(err error) (*FatalConflictError, bool) {
	var fc *FatalConflictError
	if errors.As(err, &fc) {
		return fc, true
	}
	return nil, false
}
