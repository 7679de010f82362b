package mesh

import "errors"

var (
	// ErrTagMismatch reports a tag re-declared with a different schema, or
	// typed access against a tag of another type.
	ErrTagMismatch = errors.New("mesh: tag schema mismatch")

	// ErrShapeMismatch reports value data whose length does not match
	// entity count times tag width.
	ErrShapeMismatch = errors.New("mesh: value shape mismatch")
)
