package calllog

import (
	"strconv"
	"time"
)

type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeRejected    Outcome = "rejected"
	OutcomeCancelled   Outcome = "cancelled"
	OutcomeUnanswered  Outcome = "unanswered"
	OutcomeUnavailable Outcome = "unavailable"
)

// Call is a finished call. Caption text is never recorded.
type Call struct {
	ID         string     `gorm:"primaryKey" json:"id"`
	Caller     string     `gorm:"not null;index" json:"caller"`
	Callee     string     `gorm:"not null;index" json:"callee"`
	Outcome    Outcome    `gorm:"not null;index" json:"outcome"`
	StartedAt  time.Time  `gorm:"not null;index" json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	EndedAt    time.Time  `gorm:"not null" json:"ended_at"`
	DurationMs int64      `json:"duration_ms"`
	CreatedAt  time.Time  `json:"created_at"`
}

func (c *Call) Duration() time.Duration {
	return time.Duration(c.DurationMs) * time.Millisecond
}

// LiveCall is a call still ringing or in progress.
type LiveCall struct {
	ID         string     `json:"id"`
	Caller     string     `json:"caller"`
	Callee     string     `json:"callee"`
	StartedAt  time.Time  `json:"started_at"`
	AnsweredAt *time.Time `json:"answered_at,omitempty"`
	Declined   bool       `json:"declined,omitempty"`
}

func (c *LiveCall) RedisKey() string {
	return "call:" + c.ID
}

type Metrics struct {
	Date          string `json:"date"`
	Hour          int    `json:"hour"`
	Calls         int64  `json:"calls"`
	Answered      int64  `json:"answered"`
	Completed     int64  `json:"completed"`
	Rejected      int64  `json:"rejected"`
	Cancelled     int64  `json:"cancelled"`
	Unanswered    int64  `json:"unanswered"`
	Unavailable   int64  `json:"unavailable"`
	AvgDurationMs int64  `json:"avg_duration_ms"`
}

type ListResponse struct {
	Calls []*Call `json:"calls"`
}

type MetricsResponse struct {
	Metrics []*Metrics `json:"metrics"`
}

func MetricsRedisKey(date string, hour int) string {
	return "calls:metrics:" + date + ":" + strconv.Itoa(hour)
}
