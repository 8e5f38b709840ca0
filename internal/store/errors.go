package store

import "jozvesaz/internal/models"

// Re-exported sentinels so store callers do not need a models import just
// for error checks.
var (
	ErrNotFound   = models.ErrNotFound
	ErrEmailTaken = models.ErrEmailTaken
)
