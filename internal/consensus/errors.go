package consensus

import "errors"

var (
	// ErrNoAgents: engine construction requires at least one registered agent.
	ErrNoAgents = errors.New("consensus: no agents registered")

	// ErrIntegrity: the frozen model CID could not be computed. The engine
	// refuses to start rather than run with unverifiable code identity.
	ErrIntegrity = errors.New("consensus: model CID integrity inputs unavailable")

	// ErrNoPredictions: every agent failed or timed out in the round.
	ErrNoPredictions = errors.New("consensus: round produced no predictions")
)
