package cli

import (
	"fmt"

	identity "rollguard/internal/identity/models"
	identitystore "rollguard/internal/identity/store"
	"rollguard/internal/scoring"
)

func loadRoll(path string) (*identitystore.InMemoryStore, error) {
	if path == "" {
		return nil, NewExitError(ExitCommandError, "--roll is required")
	}
	records, err := identitystore.LoadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "cannot load roll", err)
	}
	return records, nil
}

// matchOptions are the flags shared by score and detect.
type matchOptions struct {
	Algorithms string
	Profile    string
	Threshold  float64
}

func (m matchOptions) resolve() (scoring.AlgorithmSet, scoring.Profile, error) {
	algs, err := scoring.ParseAlgorithms(m.Algorithms)
	if err != nil {
		return scoring.AlgorithmSet{}, scoring.Profile{}, WrapExitError(ExitCommandError, "invalid --algorithms", err)
	}
	profile, ok := scoring.ProfileByName(m.Profile)
	if !ok {
		return scoring.AlgorithmSet{}, scoring.Profile{}, NewExitError(ExitCommandError, fmt.Sprintf("unknown profile %q", m.Profile))
	}
	return algs, profile, nil
}

func parseScope(raw string) (identity.Scope, error) {
	scope, err := identity.ParseScope(raw)
	if err != nil {
		return identity.Scope{}, WrapExitError(ExitCommandError, "invalid --scope", err)
	}
	return scope, nil
}
