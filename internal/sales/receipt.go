package sales

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var receiptPrinter = message.NewPrinter(language.English)

// FormatNarration renders the human-readable receipt line, with the amount
// grouped for printing ("1,234.50").
func FormatNarration(reference string, amount float64) string {
	return receiptPrinter.Sprintf("Received %.2f against sale %s", amount, reference)
}
