package benefits

import "testing"

func TestFormatAmount(t *testing.T) {
	if got := FormatAmount(12000); got != "120,00 €" {
		t.Fatalf("FormatAmount(12000): want=%q got=%q", "120,00 €", got)
	}
	if got := FormatAmount(5); got != "0,05 €" {
		t.Fatalf("FormatAmount(5): want=%q got=%q", "0,05 €", got)
	}
	if got := FormatAmountPtr(nil); got != "" {
		t.Fatalf("FormatAmountPtr(nil): want empty got=%q", got)
	}
}
