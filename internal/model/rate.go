package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateDateLayout is the canonical day-resolution format for rate keys.
const RateDateLayout = "2006-01-02"

// Rate is one cached currency or price conversion. The cache is append-only:
// a rate is unique per (from, to, date, source) and never overwritten, only
// superseded by entries with a newer date.
type Rate struct {
	Date      time.Time
	CreatedAt time.Time
	From      string
	To        string
	Source    string
	Rate      decimal.Decimal
}
