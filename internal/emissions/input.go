package emissions

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/carbonledger/pkg/models"
	"github.com/shopspring/decimal"
)

// RawInput is an activity submission as it arrives on the wire.
// activity_value may be a JSON number or a numeric string.
type RawInput struct {
	FactorID      string          `json:"factor_id"`
	ActivityValue json.RawMessage `json:"activity_value"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
}

// Input is a validated activity submission. EndDate equals StartDate when omitted.
type Input struct {
	FactorID      uuid.UUID
	ActivityValue decimal.Decimal
	StartDate     models.Date
	EndDate       models.Date
}

// Parse validates r and returns the typed input. All failures wrap ErrValidation.
func (r RawInput) Parse() (Input, error) {
	var in Input

	factorID := strings.TrimSpace(r.FactorID)
	if factorID == "" {
		return in, invalid("factor_id is required")
	}
	id, err := uuid.Parse(factorID)
	if err != nil {
		return in, invalid("factor_id must be a UUID")
	}
	in.FactorID = id

	value, err := parseQuantity(r.ActivityValue)
	if err != nil {
		return in, err
	}
	in.ActivityValue = value

	if strings.TrimSpace(r.StartDate) == "" {
		return in, invalid("start_date is required")
	}
	start, err := models.ParseDate(strings.TrimSpace(r.StartDate))
	if err != nil {
		return in, invalid("start_date: " + err.Error())
	}
	in.StartDate = start
	in.EndDate = start

	if end := strings.TrimSpace(r.EndDate); end != "" {
		d, err := models.ParseDate(end)
		if err != nil {
			return in, invalid("end_date: " + err.Error())
		}
		if d.Before(start.Time) {
			return in, invalid("end_date must not be before start_date")
		}
		in.EndDate = d
	}
	return in, nil
}

func parseQuantity(raw json.RawMessage) (decimal.Decimal, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return decimal.Zero, invalid("activity_value is required")
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Zero, invalid("activity_value must be numeric")
		}
		text = strings.TrimSpace(text)
		if text == "" {
			return decimal.Zero, invalid("activity_value is required")
		}
	}

	v, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, invalid("activity_value must be numeric")
	}
	if !models.QuantityInRange(v) {
		return decimal.Zero, invalid("activity_value is out of range")
	}
	if v.IsNegative() {
		return decimal.Zero, invalid("activity_value must not be negative")
	}
	return v, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
