package engine

import "context"

// Prompter asks the operator questions. The CLI implements it over the
// terminal; unattended runs never call it.
type Prompter interface {
	// Confirm asks a yes/no question. def is returned on an empty answer.
	Confirm(ctx context.Context, question string, def bool) (bool, error)
	// Select returns the index of the chosen option.
	Select(ctx context.Context, question string, options []string) (int, error)
	// Input asks for free text. def is returned on an empty answer.
	Input(ctx context.Context, question, def string) (string, error)
}
