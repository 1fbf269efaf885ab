package model

import "time"

// UsageLog is one recorded request against the gateway. Rows are append-only
// and written after the response has been sent. APIKeyID is nil for requests
// authenticated by session token, and becomes nil again if the key is later
// deleted; the user attribution survives.
type UsageLog struct {
	ID               int64     `json:"id" db:"id"`
	UserID           int64     `json:"user_id" db:"user_id"`
	APIKeyID         *int64    `json:"api_key_id,omitempty" db:"api_key_id"`
	Endpoint         string    `json:"endpoint" db:"endpoint"`
	Method           string    `json:"method" db:"method"`
	Model            string    `json:"model" db:"model"`
	PromptTokens     int64     `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens" db:"completion_tokens"`
	TotalTokens      int64     `json:"total_tokens" db:"total_tokens"`
	LatencyMs        float64   `json:"latency_ms" db:"latency_ms"`
	StatusCode       int       `json:"status_code" db:"status_code"`
	IPAddress        string    `json:"ip_address" db:"ip_address"`
	UserAgent        string    `json:"user_agent" db:"user_agent"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// UsageStats is the aggregate view of a user's usage logs over a period.
// AvgLatencyMs is nil when no requests fall in the period.
type UsageStats struct {
	TotalRequests      int64            `json:"total_requests"`
	TotalTokens        int64            `json:"total_tokens"`
	AvgLatencyMs       *float64         `json:"avg_latency_ms"`
	RequestsByStatus   map[string]int64 `json:"requests_by_status"`
	RequestsByEndpoint map[string]int64 `json:"requests_by_endpoint"`
	PeriodStart        *time.Time       `json:"period_start,omitempty"`
	PeriodEnd          *time.Time       `json:"period_end,omitempty"`
}
