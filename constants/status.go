package constants

// Outcome is the terminal state of one extraction, used in metrics labels,
// log lines and exported rows.
type Outcome string

const (
	OutcomeParsed   Outcome = "parsed"   // model reply recovered as a JSON object
	OutcomeFallback Outcome = "fallback" // reply could not be parsed, diagnostic record returned
	OutcomeFailed   Outcome = "failed"   // pipeline error, no record
)
