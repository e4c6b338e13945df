package option

import "gorm.io/gorm"

// QueryOption mutates a repository query before execution. The repository's
// Find/FindOne take these variadically so call sites can scope a lookup
// without widening the Repository interface.
type QueryOption func(tx *gorm.DB) *gorm.DB
