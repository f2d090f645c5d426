package artifact

import (
	"fmt"

	"github.com/hupe1980/agentdeck/core"
)

var (
	// ErrNotFound is returned when a file for the given session / id pair
	// does not exist in the underlying store. It matches core.ErrNotFound.
	ErrNotFound = fmt.Errorf("file %w", core.ErrNotFound)
)
