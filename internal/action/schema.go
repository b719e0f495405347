package action

import "github.com/minhpq/hoard/internal/model"

// Field names recognized in extracted candidate tables.
const (
	FieldVerb         = "verb"
	FieldAmount       = "amount"
	FieldCurrency     = "currency"
	FieldAccount      = "account"
	FieldCounterparty = "counterparty"
	FieldTag          = "tag"
	FieldNote         = "note"
	FieldDate         = "date"
	FieldFee          = "fee"
	FieldFrom         = "from"
	FieldTo           = "to"
	FieldQuantity     = "quantity"
	FieldAsset        = "asset"
	FieldConfidence   = "confidence"
)

// schema declares the parameter contract of one verb. Adding a verb to the
// taxonomy means adding an entry here and a build case in the validator.
type schema struct {
	required []string
	optional []string
}

var schemas = map[model.Verb]schema{
	model.VerbSpend: {
		required: []string{FieldAmount},
		optional: []string{FieldCurrency, FieldAccount, FieldCounterparty, FieldTag, FieldNote, FieldDate, FieldFee},
	},
	model.VerbIncome: {
		required: []string{FieldAmount},
		optional: []string{FieldCurrency, FieldAccount, FieldCounterparty, FieldTag, FieldNote, FieldDate},
	},
	model.VerbTransfer: {
		required: []string{FieldAmount, FieldFrom, FieldTo},
		optional: []string{FieldCurrency, FieldNote, FieldDate, FieldFee},
	},
	model.VerbStake: {
		required: []string{FieldQuantity, FieldAsset, FieldAccount},
		optional: []string{FieldNote, FieldDate},
	},
	model.VerbUnstake: {
		required: []string{FieldQuantity, FieldAsset, FieldAccount},
		optional: []string{FieldNote, FieldDate},
	},
	model.VerbBorrow: {
		required: []string{FieldAmount, FieldCounterparty},
		optional: []string{FieldCurrency, FieldAccount, FieldNote, FieldDate},
	},
	model.VerbRepayBorrow: {
		required: []string{FieldAmount, FieldCounterparty},
		optional: []string{FieldCurrency, FieldAccount, FieldNote, FieldDate},
	},
}

// Schema returns the declared required and optional fields for a verb.
func Schema(verb model.Verb) (required, optional []string, ok bool) {
	s, ok := schemas[verb]
	return s.required, s.optional, ok
}
