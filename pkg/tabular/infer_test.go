package tabular

import (
	"testing"

	"letterforge/pkg/domain"
)

func TestInferColumnType(t *testing.T) {
	cases := []struct {
		name   string
		values []string
		want   domain.ColumnType
	}{
		{"portuguese booleans", []string{"sim", "não", "sim"}, domain.ColumnBoolean},
		{"english booleans", []string{"true", "false", "yes", "no"}, domain.ColumnBoolean},
		{"cased boolean tokens are text", []string{"True", "FALSE"}, domain.ColumnText},
		{"zero one are numbers", []string{"1", "0", "1"}, domain.ColumnNumber},
		{"integers", []string{"10", "42", "-3"}, domain.ColumnNumber},
		{"decimals", []string{"1.5", "2.75"}, domain.ColumnNumber},
		{"iso dates", []string{"2024-01-01", "2024-02-01"}, domain.ColumnDate},
		{"slash dates", []string{"01/02/2024", "03/04/2024"}, domain.ColumnDate},
		{"day-first slash dates are text", []string{"15/03/2024"}, domain.ColumnText},
		{"plain text", []string{"alpha", "beta"}, domain.ColumnText},
		{"mixed number and text", []string{"10", "ten"}, domain.ColumnText},
		{"mixed boolean and text", []string{"sim", "maybe"}, domain.ColumnText},
		{"empty values only", []string{"", "  ", ""}, domain.ColumnText},
		{"no values", nil, domain.ColumnText},
		{"whitespace padded numbers", []string{" 7 ", "8"}, domain.ColumnNumber},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InferColumnType(tc.values); got != tc.want {
				t.Fatalf("InferColumnType(%v) = %q, want %q", tc.values, got, tc.want)
			}
		})
	}
}

func TestInferColumnTypeSamplesFirstTen(t *testing.T) {
	values := make([]string, 0, 12)
	for i := 0; i < 10; i++ {
		values = append(values, "1")
	}
	// Values past the sample window must not flip the result.
	values = append(values, "not a number", "also text")
	if got := InferColumnType(values); got != domain.ColumnNumber {
		t.Fatalf("InferColumnType = %q, want %q", got, domain.ColumnNumber)
	}
}

func TestInferColumnTypeDropsEmptiesInsideWindow(t *testing.T) {
	values := []string{"", "", "2024-01-01", "", "2024-06-30"}
	if got := InferColumnType(values); got != domain.ColumnDate {
		t.Fatalf("InferColumnType = %q, want %q", got, domain.ColumnDate)
	}
}

func TestInferColumnTypeEmptyWindowIsText(t *testing.T) {
	// The window is the first ten cells, not the first ten non-empty values:
	// a column that starts with ten blanks is text no matter what follows.
	values := []string{"", "", "", "", "", "", "", "", "", "", "1", "2", "3"}
	if got := InferColumnType(values); got != domain.ColumnText {
		t.Fatalf("InferColumnType = %q, want %q", got, domain.ColumnText)
	}
}
