package core

import "context"

// Options controls model behavior; fields are optional per provider.
type Options struct {
	Model               string
	Temperature         float64
	MaxCompletionTokens int
	SystemPrompt        string
}

// Client is a provider-agnostic interface for the single LLM operation the
// deliberation engine needs: one prompt in, one text completion out.
type Client interface {
	Respond(ctx context.Context, input string, opts Options) (string, error)
}

// Merge overlays non-zero call options on top of defaults.
func Merge(defaults, opts Options) Options {
	out := defaults
	if opts.Model != "" {
		out.Model = opts.Model
	}
	if opts.Temperature != 0 {
		out.Temperature = opts.Temperature
	}
	if opts.MaxCompletionTokens != 0 {
		out.MaxCompletionTokens = opts.MaxCompletionTokens
	}
	if opts.SystemPrompt != "" {
		out.SystemPrompt = opts.SystemPrompt
	}
	return out
}
