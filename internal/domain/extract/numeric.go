package extract

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/target/mmk-crawlsync/internal/domain/model"
)

var (
	errNotNumber   = errors.New("not a number")
	errNotInteger  = errors.New("not a whole number")
	errNotPositive = errors.New("not positive")
)

// blanks are placeholder cells that mean "no value".
var blanks = map[string]bool{"": true, "-": true, "--": true, "n/a": true, "na": true, "nil": true}

// parseNumber strips grouping separators, reads "(123)" as -123 and "12.5%" as 12.5.
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(strings.NewReplacer(",", "", " ", "", "\u00a0", "").Replace(raw))
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return 0, errNotNumber
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%w: %q", errNotNumber, raw)
	}
	if neg {
		v = -v
	}
	return v, nil
}

// parseCell converts cleaned cell text according to the column spec.
func parseCell(text string, spec model.ColumnSpec) (model.Value, error) {
	if blanks[strings.ToLower(text)] {
		return model.Null(), nil
	}

	switch spec.Type {
	case model.ColumnInteger, model.ColumnDecimal, model.ColumnPercent:
		v, err := parseNumber(text)
		if err != nil {
			return model.Null(), err
		}
		if spec.Type == model.ColumnInteger && v != math.Trunc(v) {
			return model.Null(), fmt.Errorf("%w: %q", errNotInteger, text)
		}
		if spec.Positive && v <= 0 {
			return model.Null(), fmt.Errorf("%w: %q", errNotPositive, text)
		}
		return model.Number(v), nil
	case model.ColumnDate:
		layout := spec.Layout
		if layout == "" {
			layout = model.DateLayout
		}
		d, err := time.Parse(layout, text)
		if err != nil {
			return model.Null(), fmt.Errorf("date %q: %w", text, err)
		}
		return model.String(d.Format(model.DateLayout)), nil
	default:
		return model.String(text), nil
	}
}

// convertScalar handles JSON cells, which may already be numbers.
func convertScalar(x any, spec model.ColumnSpec) (model.Value, error) {
	switch t := x.(type) {
	case nil:
		return model.Null(), nil
	case string:
		return parseCell(cleanText(t), spec)
	case float64:
		if spec.Type == model.ColumnText || spec.Type == model.ColumnDate || spec.Type == "" {
			return model.String(strconv.FormatFloat(t, 'f', -1, 64)), nil
		}
		return parseCell(strconv.FormatFloat(t, 'f', -1, 64), spec)
	default:
		return parseCell(cleanText(fmt.Sprint(t)), spec)
	}
}

// cleanText collapses internal whitespace.
func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
