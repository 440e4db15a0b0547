package tabular

import (
	"math"
	"strconv"
	"strings"

	"github.com/araddon/dateparse"

	"letterforge/pkg/domain"
)

// sampleSize caps how many leading cells inference inspects per column.
const sampleSize = 10

var booleanTokens = map[string]struct{}{
	"true":  {},
	"false": {},
	"sim":   {},
	"não":   {},
	"yes":   {},
	"no":    {},
}

// InferColumnType picks a column type from the first ten cells of a column;
// blank cells inside that window are dropped, cells past it are never read.
// Precedence is boolean, number, date, text; a type wins only when every
// sampled value matches it. A window with no non-empty cells is text.
func InferColumnType(values []string) domain.ColumnType {
	if len(values) > sampleSize {
		values = values[:sampleSize]
	}
	sample := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		sample = append(sample, v)
	}
	if len(sample) == 0 {
		return domain.ColumnText
	}

	if allMatch(sample, isBooleanToken) {
		return domain.ColumnBoolean
	}
	if allMatch(sample, isFiniteNumber) {
		return domain.ColumnNumber
	}
	if allMatch(sample, isDate) {
		return domain.ColumnDate
	}
	return domain.ColumnText
}

func allMatch(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

// isBooleanToken matches the token set exactly, case as written. "True" is
// not a boolean; "0" and "1" are numbers.
func isBooleanToken(v string) bool {
	_, ok := booleanTokens[v]
	return ok
}

func isFiniteNumber(v string) bool {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return false
	}
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func isDate(v string) bool {
	_, err := dateparse.ParseAny(strings.TrimSpace(v))
	return err == nil
}
