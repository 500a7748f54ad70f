// Package storage defines the persistence boundary for evaluations and the
// outbound action log.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ErrLogNotFound is returned when no action log row matches a provider SID.
var ErrLogNotFound = errors.New("action log entry not found")

// Evaluation is a persisted decision computation.
type Evaluation struct {
	ID          string          `json:"id"`
	Name        string          `json:"nombre"`
	DaysPastDue int             `json:"dias_vencido"`
	Score       float64         `json:"score_entrada"`
	Score850    float64         `json:"score_850"`
	Amount      decimal.Decimal `json:"monto"`
	Level       int             `json:"nivel"`
	MinPartial  decimal.Decimal `json:"min_parcial"`
	Channel     string          `json:"canal_sugerido"`
	Rationale   string          `json:"mensaje"`
	CreatedAt   time.Time       `json:"created_at"`
}

// ActionLog records one outbound contact attempt on any channel. Call rows
// are updated in place as telephony events arrive; digital channel rows are
// append-only.
type ActionLog struct {
	ID          string    `json:"id"`
	Channel     string    `json:"canal"`
	To          string    `json:"destino"`
	Name        string    `json:"nombre"`
	Status      string    `json:"status"`
	ProviderSID string    `json:"provider_sid,omitempty"`
	Payload     string    `json:"payload,omitempty"`
	Error       string    `json:"error,omitempty"`
	Answered    bool      `json:"answered"`
	AnsweredBy  string    `json:"answered_by,omitempty"`
	EndStatus   string    `json:"end_status,omitempty"`
	DurationSec int       `json:"duration_sec"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CallStatusUpdate carries the reconciled outcome of a telephony event.
type CallStatusUpdate struct {
	Status      string
	Answered    bool
	AnsweredBy  string
	EndStatus   string
	DurationSec int
}

// EvaluationStore persists decision computations.
type EvaluationStore interface {
	SaveEvaluation(ctx context.Context, ev *Evaluation) error
	RecentEvaluations(ctx context.Context, limit int) ([]*Evaluation, error)
}

// ActionLogStore persists outbound contact attempts and their outcomes.
type ActionLogStore interface {
	Append(ctx context.Context, entry *ActionLog) error
	GetByProviderSID(ctx context.Context, sid string) (*ActionLog, error)
	// UpdateCallStatus applies a reconciled outcome to the row with the
	// given provider SID. An empty AnsweredBy or EndStatus leaves the stored
	// value untouched, so a late non-terminal event cannot erase a recorded
	// outcome. Returns ErrLogNotFound when no row matches.
	UpdateCallStatus(ctx context.Context, sid string, upd CallStatusUpdate) error
	// UpdateAMD records the machine-detection verdict without touching the
	// lifecycle fields.
	UpdateAMD(ctx context.Context, sid string, answered bool, answeredBy, status string) error
	Recent(ctx context.Context, limit int) ([]*ActionLog, error)
	// StuckCalls returns call rows still queued or sent that were created at
	// or after since.
	StuckCalls(ctx context.Context, since time.Time) ([]*ActionLog, error)
}

// Store is the combined persistence surface the handlers wire against.
type Store interface {
	EvaluationStore
	ActionLogStore
	Close() error
}
