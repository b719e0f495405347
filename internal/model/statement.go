package model

// StatementRow is one normalized row of a bulk bank-statement upload, before
// extraction. Values are kept as the raw cell strings; normalization happens
// during validation. Reference carries the bank-assigned row identifier for
// traceability.
type StatementRow struct {
	Reference   string
	Date        string
	Description string
	Debit       string
	Credit      string
	Currency    string
}
