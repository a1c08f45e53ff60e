package service

import (
	"slices"

	"github.com/sumire/taskflow/internal/domain"
)

// Authorize passes when the caller's role is one of allowed. A nil caller
// means authentication did not run.
func Authorize(caller *domain.PublicUser, allowed ...domain.Role) error {
	if caller == nil {
		return domain.ErrNotAuthenticated
	}
	if slices.Contains(allowed, caller.Role) {
		return nil
	}
	return domain.ErrForbidden
}
