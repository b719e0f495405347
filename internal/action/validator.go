package action

import (
	"fmt"
	"strings"
	"time"

	"github.com/minhpq/hoard/internal/model"
	"github.com/shopspring/decimal"
)

// Date spellings accepted from extraction output and spreadsheet cells.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"2/1/2006",
	"01-02-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// Per-defaulted-field confidence discount applied to the schema-fit score.
const defaultedFieldDiscount = 0.1

// Validator checks extracted candidates against the taxonomy and builds the
// typed action. It never writes anywhere; a failed validation is reported in
// the Result, not as an error.
type Validator struct {
	now             func() time.Time
	location        *time.Location
	defaultCurrency string
}

// NewValidator creates a validator that defaults dates to "now" in the given
// timezone and currencies to defaultCurrency.
func NewValidator(location *time.Location, defaultCurrency string) *Validator {
	if location == nil {
		location = time.UTC
	}
	if defaultCurrency == "" {
		defaultCurrency = "VND"
	}
	return &Validator{
		now:             time.Now,
		location:        location,
		defaultCurrency: defaultCurrency,
	}
}

// Result is the outcome of validating one candidate. Action is nil and
// Confidence 0 when validation failed; Reason then records why, for the
// pending record's provenance.
type Result struct {
	Action     *model.Action
	Reason     string
	Confidence float64
}

// Validate maps a parsed candidate field table onto the taxonomy. The final
// confidence is the minimum of the extraction confidence and the schema-fit
// score, which starts at 1.0 and is discounted for every defaulted field.
func (v *Validator) Validate(fields map[string]string, extractionConfidence float64, source model.Source) Result {
	verb := model.Verb(strings.ToLower(strings.TrimSpace(fields[FieldVerb])))
	sch, ok := schemas[verb]
	if !ok {
		return Result{Reason: fmt.Sprintf("unknown verb %q", fields[FieldVerb])}
	}

	for _, name := range sch.required {
		if strings.TrimSpace(fields[name]) == "" {
			return Result{Reason: fmt.Sprintf("missing required field %q for verb %s", name, verb)}
		}
	}

	defaulted := 0

	date, wasDefaulted, err := v.resolveDate(fields[FieldDate], source)
	if err != nil {
		return Result{Reason: err.Error()}
	}
	if wasDefaulted {
		defaulted++
	}

	currency := strings.ToUpper(strings.TrimSpace(fields[FieldCurrency]))
	if currency == "" {
		currency = v.defaultCurrency
		defaulted++
	}

	params, err := v.buildParams(verb, fields, currency, date)
	if err != nil {
		return Result{Reason: err.Error()}
	}

	schemaFit := 1.0 - defaultedFieldDiscount*float64(defaulted)
	if schemaFit < 0 {
		schemaFit = 0
	}

	confidence := extractionConfidence
	if schemaFit < confidence {
		confidence = schemaFit
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	return Result{
		Action:     &model.Action{Verb: verb, Params: params},
		Confidence: confidence,
	}
}

// resolveDate parses or defaults the candidate date. Text and photo sources
// default to now in the configured timezone; spreadsheet rows carry a
// bank-assigned date that must be present and parseable.
func (v *Validator) resolveDate(raw string, source model.Source) (date time.Time, wasDefaulted bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if source == model.SourceSpreadsheetRow {
			return time.Time{}, false, fmt.Errorf("missing required field %q for spreadsheet source", FieldDate)
		}
		return v.now().In(v.location), true, nil
	}

	for _, layout := range dateLayouts {
		if t, parseErr := time.ParseInLocation(layout, raw, v.location); parseErr == nil {
			return t, false, nil
		}
	}
	return time.Time{}, false, fmt.Errorf("unparseable date %q", raw)
}

func (v *Validator) buildParams(verb model.Verb, fields map[string]string, currency string, date time.Time) (model.Params, error) {
	amount, fee, err := parseAmountFields(fields, verb)
	if err != nil {
		return nil, err
	}

	switch verb {
	case model.VerbSpend:
		return model.SpendParams{
			Amount:       amount,
			Currency:     currency,
			Account:      strings.TrimSpace(fields[FieldAccount]),
			Counterparty: strings.TrimSpace(fields[FieldCounterparty]),
			Tag:          strings.TrimSpace(fields[FieldTag]),
			Note:         strings.TrimSpace(fields[FieldNote]),
			Date:         date,
			Fee:          fee,
		}, nil
	case model.VerbIncome:
		return model.IncomeParams{
			Amount:       amount,
			Currency:     currency,
			Account:      strings.TrimSpace(fields[FieldAccount]),
			Counterparty: strings.TrimSpace(fields[FieldCounterparty]),
			Tag:          strings.TrimSpace(fields[FieldTag]),
			Note:         strings.TrimSpace(fields[FieldNote]),
			Date:         date,
		}, nil
	case model.VerbTransfer:
		return model.TransferParams{
			Amount:   amount,
			Currency: currency,
			From:     strings.TrimSpace(fields[FieldFrom]),
			To:       strings.TrimSpace(fields[FieldTo]),
			Note:     strings.TrimSpace(fields[FieldNote]),
			Date:     date,
			Fee:      fee,
		}, nil
	case model.VerbStake, model.VerbUnstake:
		quantity, qErr := ParseAmount(fields[FieldQuantity])
		if qErr != nil {
			return nil, fmt.Errorf("invalid quantity: %w", qErr)
		}
		if verb == model.VerbStake {
			return model.StakeParams{
				Quantity: quantity,
				Asset:    strings.ToUpper(strings.TrimSpace(fields[FieldAsset])),
				Account:  strings.TrimSpace(fields[FieldAccount]),
				Note:     strings.TrimSpace(fields[FieldNote]),
				Date:     date,
			}, nil
		}
		return model.UnstakeParams{
			Quantity: quantity,
			Asset:    strings.ToUpper(strings.TrimSpace(fields[FieldAsset])),
			Account:  strings.TrimSpace(fields[FieldAccount]),
			Note:     strings.TrimSpace(fields[FieldNote]),
			Date:     date,
		}, nil
	case model.VerbBorrow:
		return model.BorrowParams{
			Amount:       amount,
			Currency:     currency,
			Account:      strings.TrimSpace(fields[FieldAccount]),
			Counterparty: strings.TrimSpace(fields[FieldCounterparty]),
			Note:         strings.TrimSpace(fields[FieldNote]),
			Date:         date,
		}, nil
	case model.VerbRepayBorrow:
		return model.RepayBorrowParams{
			Amount:       amount,
			Currency:     currency,
			Account:      strings.TrimSpace(fields[FieldAccount]),
			Counterparty: strings.TrimSpace(fields[FieldCounterparty]),
			Note:         strings.TrimSpace(fields[FieldNote]),
			Date:         date,
		}, nil
	}
	return nil, fmt.Errorf("unknown verb %q", verb)
}

// parseAmountFields normalizes the amount and optional fee for money verbs.
// Stake and unstake are quantity-based and skip both.
func parseAmountFields(fields map[string]string, verb model.Verb) (amount, fee decimal.Decimal, err error) {
	if verb == model.VerbStake || verb == model.VerbUnstake {
		return decimal.Zero, decimal.Zero, nil
	}

	amount, err = ParseAmount(fields[FieldAmount])
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	if raw := strings.TrimSpace(fields[FieldFee]); raw != "" {
		fee, err = ParseAmount(raw)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("invalid fee: %w", err)
		}
	}
	return amount, fee, nil
}
