package strata

type ActionConfigurator func(a *action)

type action struct {
	steps int
}

// WithSteps caps how many units a single Migrate or Rollback call
// touches.
func WithSteps(steps int) ActionConfigurator {
	return func(a *action) {
		a.steps = steps
	}
}
