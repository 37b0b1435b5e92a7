package entities

type GenerationOutcome string

const (
	OutcomeSuccess     GenerationOutcome = "success"
	OutcomeTimeout     GenerationOutcome = "timeout"
	OutcomeUnavailable GenerationOutcome = "unavailable"
	OutcomeMalformed   GenerationOutcome = "malformed"
)

type GenerationRequest struct {
	Instructions string
	Input        string
	MaxTokens    int
}

// GenerationResult is a tagged value: Text is only meaningful when
// Outcome is OutcomeSuccess.
type GenerationResult struct {
	Outcome GenerationOutcome
	Text    string
	Err     error
}

func (r GenerationResult) OK() bool {
	return r.Outcome == OutcomeSuccess
}
