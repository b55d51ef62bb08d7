package industrymatch

import "time"

// NewsItem is one unit of classification work: an article whose
// industry labels have not been assigned yet.
type NewsItem struct {
	ID          string
	Title       string
	Content     string
	PublishedAt time.Time
}

// Classification is the outcome for a single item: 0-3 canonical
// industry labels. An empty Industries slice means the model looked at
// the item and found no matching industry; an item absent from a result
// set means the model never returned it at all.
type Classification struct {
	ID         string   `json:"id"`
	Industries []string `json:"industries"`
}

// ModelLimit holds the static ceilings for one model. Immutable
// configuration, never persisted.
type ModelLimit struct {
	RPM int   `yaml:"rpm"` // requests per minute
	TPM int64 `yaml:"tpm"` // tokens per minute
	RPD int   `yaml:"rpd"` // requests per day
}

// UsageRecord tracks consumption for one (model, UTC calendar day)
// pair. The minute counters are meaningful only while MinuteWindow
// equals the current wall-clock minute; once the minute advances they
// are stale and admission treats them as zero.
type UsageRecord struct {
	Model          string
	Date           string // UTC day, "2006-01-02"
	RequestsMinute int
	TokensMinute   int64
	RequestsDay    int
	TokensDay      int64
	MinuteWindow   int // minute-of-hour of the last recorded usage
	LastRequestAt  time.Time
}

// Add records one request of tokens at now, resetting the minute
// counters when the stored minute window no longer matches now's
// minute. Store implementations that apply usage client-side share
// this arithmetic.
func (u *UsageRecord) Add(tokens int64, now time.Time) {
	minute := now.Minute()
	if u.LastRequestAt.IsZero() || u.MinuteWindow != minute {
		u.RequestsMinute = 1
		u.TokensMinute = tokens
	} else {
		u.RequestsMinute++
		u.TokensMinute += tokens
	}
	u.RequestsDay++
	u.TokensDay += tokens
	u.MinuteWindow = minute
	u.LastRequestAt = now
}

// Usage holds provider-metered token counts when the provider reports
// them. Informational only; admission and recording always go through
// EstimateTokens.
type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

// DateUTC returns the UTC calendar day of t in the form usage records
// are keyed by.
func DateUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
