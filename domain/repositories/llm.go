package repositories

import "context"

// Agent answers a user's turn
type Agent interface {
	// Respond takes what the user said and returns the agent's reply
	Respond(ctx context.Context, text string) (string, error)
}
