// Package decision maps a scored debtor snapshot to a collection strategy:
// a discrete level (1 low, 2 medium, 3 high), a minimum acceptable partial
// payment, and per-channel message templates. The computation is pure and
// deterministic.
package decision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Decision is the derived, non-persisted output of Compute. It is recomputed
// from the same inputs on every call attempt, never cached.
type Decision struct {
	SuggestedChannel string          `json:"canal_sugerido"`
	Channels         []string        `json:"channels"`
	Level            int             `json:"nivel"`
	MinPartial       decimal.Decimal `json:"min_parcial"`
	Templates        Templates       `json:"templates"`
	ScoreInput       float64         `json:"score_entrada"`
	Score850         int             `json:"score_850"`
	DaysPastDue      int             `json:"dpd"`
	Amount           decimal.Decimal `json:"monto"`
	Rationale        string          `json:"mensaje"`
}

// Templates is the per-level message bundle with name/amount/days already
// interpolated.
type Templates struct {
	SMS          string `json:"sms"`
	WhatsApp     string `json:"whatsapp"`
	EmailSubject string `json:"email_subject"`
	EmailBody    string `json:"email_body"`
	CallOpening  string `json:"call_opening"`
}

var (
	minPartialFloor = decimal.NewFromInt(100)
	tenPercent      = decimal.NewFromFloat(0.10)
)

// To850Scale normalizes an arbitrary credit score to the 300-850 scale.
// Inputs in [0,1] are treated as fractions, inputs in [0,100] are mapped
// linearly via 300 + s*5.5, anything above 100 passes through unchanged.
func To850Scale(raw float64) float64 {
	s := raw
	if s >= 0 && s <= 1 {
		s *= 100
	}
	if s <= 100 {
		if s < 0 {
			s = 0
		}
		return 300 + s*5.5
	}
	return s
}

// ClassifyLevel derives the collection level from days past due and raw
// score. Base level by DPD (1-5, 6-15, 16+), adjusted one step down for
// scores >= 700 and one step up for scores < 650 on the 850 scale.
func ClassifyLevel(daysPastDue int, score float64) int {
	s850 := To850Scale(score)

	var level int
	switch {
	case daysPastDue >= 16:
		level = 3
	case daysPastDue >= 6:
		level = 2
	default:
		// 0 or negative DPD is still a level 1 reminder.
		level = 1
	}

	if s850 < 650 {
		level = min(3, level+1)
	} else if s850 >= 700 {
		level = max(1, level-1)
	}
	return level
}

// MinPartial returns the minimum acceptable partial payment: 10% of the
// outstanding amount with a 100-unit floor, rounded to 2 decimals.
func MinPartial(amount decimal.Decimal) decimal.Decimal {
	m := amount.Mul(tenPercent)
	if m.LessThan(minPartialFloor) {
		m = minPartialFloor
	}
	return m.Round(2)
}

// Compute evaluates a debtor and returns the full collection decision.
// Same inputs always produce the same Decision.
func Compute(name string, daysPastDue int, score float64, amount decimal.Decimal) Decision {
	if daysPastDue < 0 {
		daysPastDue = 0
	}

	level := ClassifyLevel(daysPastDue, score)
	minPartial := MinPartial(amount)
	s850 := To850Scale(score)

	rationale := fmt.Sprintf(
		"Sugerido principal: call. Nivel=%d (1 bajo, 2 medio, 3 alto). "+
			"Score(entrada)=%s → Score(850)=%d; DPD=%d; Monto=%s; MinParcial=%s",
		level,
		strconv.FormatFloat(score, 'f', -1, 64),
		int(s850),
		daysPastDue,
		amount.StringFixed(2),
		minPartial.StringFixed(2),
	)

	return Decision{
		SuggestedChannel: "call",
		Channels:         []string{"call", "whatsapp", "sms", "email"},
		Level:            level,
		MinPartial:       minPartial,
		Templates:        templates(name, daysPastDue, amount, level, minPartial),
		ScoreInput:       score,
		Score850:         int(s850),
		DaysPastDue:      daysPastDue,
		Amount:           amount,
		Rationale:        rationale,
	}
}

// FormatMXN renders a monetary amount with es-MX separators: period for
// thousands, comma for decimals.
func FormatMXN(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)

	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	intPart, fracPart, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	b.WriteByte(',')
	b.WriteString(fracPart)
	return b.String()
}

// ParseFloat coerces a possibly-invalid numeric string to a float64,
// defaulting to 0. Bad inputs never abort a collection attempt.
func ParseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// ParseInt coerces a possibly-invalid numeric string to an int, defaulting
// to 0.
func ParseInt(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return int(ParseFloat(s))
	}
	return n
}

// ParseAmount coerces a possibly-invalid decimal string to a Decimal,
// defaulting to zero.
func ParseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}
