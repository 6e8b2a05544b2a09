package shared

import "github.com/stitchworks-erp/stitchworks-erp/internal/platform/httpx"

// Aliases of the transport sentinels so repositories can signal outcome
// without importing the HTTP layer at call sites.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = httpx.ErrNotFound
	// ErrConflict indicates the operation collides with already recorded state.
	ErrConflict = httpx.ErrConflict
)
