package industrymatch

import "context"

// Provider is the single synchronous LLM call the classifier needs: a
// system instruction plus a user prompt in, free-form text out. The
// text is expected to contain one JSON object somewhere in it.
type Provider interface {
	// Name returns the provider identifier (e.g. "gemini").
	Name() string

	// GenerateContent performs one blocking generation call.
	GenerateContent(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// GenerateRequest is the request sent to a provider adapter.
type GenerateRequest struct {
	Model             string
	SystemInstruction string
	Prompt            string
}

// GenerateResponse is the response from a provider adapter.
type GenerateResponse struct {
	Text         string
	FinishReason string
	Usage        Usage
}
