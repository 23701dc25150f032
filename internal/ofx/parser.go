// Package ofx reads OFX/QFX bank and credit-card statements into
// core.BankTransaction values.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"finanzas/internal/core"
)

var (
	severityFix = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// SGML files sometimes end a line with an opening tag missing its ">".
	unclosedTag = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// preprocess repairs formatting problems ofxgo rejects.
func preprocess(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityFix.ReplaceAllStringFunc(content, strings.ToUpper)
	return unclosedTag.ReplaceAllString(content, "$1>")
}

// Parse reads every bank and credit-card statement in r. Amounts keep the
// OFX sign: debits are negative.
func Parse(ctx context.Context, r io.Reader) ([]core.BankTransaction, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read ofx: %w", err)
	}
	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocess(string(raw))))
	if err != nil {
		return nil, fmt.Errorf("parse ofx: %w", err)
	}

	var txs []core.BankTransaction
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		txs = appendTransactions(ctx, txs, stmt.BankTranList.Transactions)
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		txs = appendTransactions(ctx, txs, stmt.BankTranList.Transactions)
	}

	slog.InfoContext(ctx, "Parsed OFX file",
		"transactions", len(txs),
		"bank_statements", len(resp.Bank),
		"cc_statements", len(resp.CreditCard))
	return txs, nil
}

func appendTransactions(ctx context.Context, dst []core.BankTransaction, src []ofxgo.Transaction) []core.BankTransaction {
	for _, t := range src {
		cents, err := core.ParseAmount(t.TrnAmt.FloatString(2))
		if err != nil {
			slog.WarnContext(ctx, "Skipping OFX transaction with unreadable amount",
				"fitid", string(t.FiTID), "error", err)
			continue
		}
		dst = append(dst, core.BankTransaction{
			Date:        core.DateOf(t.DtPosted.Time),
			Description: description(t),
			Amount:      core.Money{Cents: cents},
			Reference:   string(t.FiTID),
		})
	}
	return dst
}

// description prefers the payee, then NAME, then MEMO.
func description(t ofxgo.Transaction) string {
	if t.Payee != nil && t.Payee.Name != "" {
		return strings.TrimSpace(string(t.Payee.Name))
	}
	if name := strings.TrimSpace(string(t.Name)); name != "" {
		return name
	}
	return strings.TrimSpace(string(t.Memo))
}
