// Package deps verifies that the external tools lvrestic shells out to are
// installed before any mutation happens.
package deps

import (
	"context"
	"fmt"

	"github.com/fgeck/lvrestic/internal/runner"
)

// MissingError reports a required external tool that is absent or broken.
type MissingError struct {
	Tool string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("required tool %q is not available, please install it", e.Tool)
}

// requiredTools are probed without arguments; both exit zero when healthy.
var requiredTools = []string{"lvs", "restic"}

// Check probes every required tool and returns a MissingError for the
// first one that cannot run.
func Check(ctx context.Context, executor runner.Executor) error {
	for _, tool := range requiredTools {
		if executor.Probe(ctx, tool) != 0 {
			return &MissingError{Tool: tool}
		}
	}
	return nil
}
