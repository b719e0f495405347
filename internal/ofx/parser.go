// Package ofx converts OFX/QFX bank exports into statement rows for
// ingestion. Banks emit loosely conforming SGML, so the raw content is
// repaired before parsing.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/minhpq/hoard/internal/model"
)

// Parser reads OFX/QFX statement files.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates an OFX parser.
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	openTagRegex  = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// repair fixes common OFX formatting problems: leading whitespace before the
// header, mixed-case SEVERITY values, and SGML open tags missing their
// closing bracket.
func repair(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	content = openTagRegex.ReplaceAllString(content, "$1>")
	return content
}

// ParseRows parses an OFX/QFX file into statement rows. Both bank and credit
// card statements contribute rows; a statement that fails to convert is
// skipped with a warning rather than failing the whole file.
func (p *Parser) ParseRows(ctx context.Context, reader io.Reader) ([]model.StatementRow, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(repair(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	var rows []model.StatementRow

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		currency := strings.ToUpper(stmt.CurDef.String())
		for _, txn := range stmt.BankTranList.Transactions {
			rows = append(rows, convertTransaction(txn, currency))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		currency := strings.ToUpper(stmt.CurDef.String())
		for _, txn := range stmt.BankTranList.Transactions {
			rows = append(rows, convertTransaction(txn, currency))
		}
	}

	p.logger.Info("parsed OFX file", "rows", len(rows))
	return rows, nil
}

// convertTransaction maps one OFX transaction to a statement row. OFX signs
// amounts (negative for debits); the row keeps debit and credit in separate
// columns like a bank spreadsheet export.
func convertTransaction(txn ofxgo.Transaction, currency string) model.StatementRow {
	row := model.StatementRow{
		Reference:   string(txn.FiTID),
		Date:        txn.DtPosted.Time.Format(model.RateDateLayout),
		Description: description(txn),
		Currency:    currency,
	}

	amount := txn.TrnAmt.Rat.FloatString(2)
	if strings.HasPrefix(amount, "-") {
		row.Debit = strings.TrimPrefix(amount, "-")
	} else {
		row.Credit = amount
	}

	return row
}

// description picks the most informative text field for a transaction:
// payee name when present, otherwise NAME, falling back to MEMO when NAME
// is a generic placeholder.
func description(txn ofxgo.Transaction) string {
	if txn.Payee != nil && txn.Payee.Name != "" {
		return string(txn.Payee.Name)
	}

	name := strings.TrimSpace(string(txn.Name))
	if txn.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(txn.Memo))
	}
	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
