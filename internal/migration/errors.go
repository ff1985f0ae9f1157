package migration

import (
	"errors"
	"fmt"
)

const (
	ResourceCart     = "cart"
	ResourceWishlist = "wishlist"
)

var ErrUnknownTransition = errors.New("unknown transition")

// MigrationError is a failed merge of one resource. The other resource's merge is
// unaffected and the attempt is not retried.
type MigrationError struct {
	Resource     string
	TransitionID string
	Err          error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migrate %s for transition %s: %v", e.Resource, e.TransitionID, e.Err)
}

func (e *MigrationError) Unwrap() error { return e.Err }
