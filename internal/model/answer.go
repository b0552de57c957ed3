package model

// AIAnswer is a produced answer with its accounting. It is an immutable
// value: copies are handed to callers, the cache and the session.
type AIAnswer struct {
	Text             string  `json:"text"`
	ProviderName     string  `json:"provider"`
	ModelName        string  `json:"model"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TokensUsed       int     `json:"tokens_used"`
	CostUSD          float64 `json:"cost_usd"`
	Confidence       float64 `json:"confidence"`
	ServedFromCache  bool    `json:"served_from_cache"`
	LatencyMs        int64   `json:"latency_ms"`
}

// WithCacheHit returns a copy marked as served from cache.
func (a AIAnswer) WithCacheHit() AIAnswer {
	a.ServedFromCache = true
	return a
}

// Source tells where a Result's answer came from.
type Source string

const (
	SourceExtraction Source = "extraction"
	SourceCache      Source = "cache"
	SourceGeneration Source = "generation"
)

// ErrorKind tags why a field has no answer.
type ErrorKind string

const (
	ErrRateLimited      ErrorKind = "rate_limited"
	ErrTimeout          ErrorKind = "timeout"
	ErrAuthentication   ErrorKind = "authentication_failed"
	ErrModelUnavailable ErrorKind = "model_unavailable"
	ErrProvider         ErrorKind = "provider_error"
	ErrSessionEnded     ErrorKind = "session_ended"
	ErrCanceled         ErrorKind = "canceled"
	ErrConfiguration    ErrorKind = "configuration"
)

// Retryable reports whether a call failing with k may be attempted again
// after a backoff.
func (k ErrorKind) Retryable() bool {
	return k == ErrRateLimited || k == ErrTimeout
}

// Result is the per-field outcome of a batch.
type Result struct {
	FieldID        string         `json:"field_id"`
	Label          string         `json:"label"`
	Answer         *AIAnswer      `json:"answer,omitempty"`
	ErrorKind      ErrorKind      `json:"error_kind,omitempty"`
	Source         Source         `json:"source,omitempty"`
	Confidence     float64        `json:"confidence"`
	Classification Classification `json:"classification"`
	Attempts       int            `json:"attempts,omitempty"`
}

// OK reports whether the field was answered.
func (r Result) OK() bool {
	return r.Answer != nil && r.ErrorKind == ""
}

// Summary aggregates one batch.
type Summary struct {
	Total          int     `json:"total"`
	FromExtraction int     `json:"from_extraction"`
	FromCache      int     `json:"from_cache"`
	FromSession    int     `json:"from_session"`
	Generated      int     `json:"generated"`
	Failed         int     `json:"failed"`
	TotalTokens    int     `json:"total_tokens"`
	TotalCostUSD   float64 `json:"total_cost_usd"`
	DurationMs     int64   `json:"duration_ms"`
}

// BatchResult holds the ordered results of one Resolve call.
type BatchResult struct {
	SessionID string   `json:"session_id"`
	Results   []Result `json:"results"`
	Summary   Summary  `json:"summary"`
}

// Decision is the user's verdict on a proposed answer.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionEdit    Decision = "edit"
	DecisionReject  Decision = "reject"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	switch d {
	case DecisionApprove, DecisionEdit, DecisionReject:
		return true
	}
	return false
}
