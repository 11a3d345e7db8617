package benefits

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var amountPrinter = message.NewPrinter(language.MustParse("es-ES"))

// FormatAmount renders cents as a Spanish-locale euro amount, e.g. "120,00 €".
func FormatAmount(cents int64) string {
	return amountPrinter.Sprintf("%.2f €", float64(cents)/100)
}

// FormatAmountPtr is FormatAmount for optional amounts; nil yields "".
func FormatAmountPtr(cents *int64) string {
	if cents == nil {
		return ""
	}
	return FormatAmount(*cents)
}
