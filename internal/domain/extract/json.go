package extract

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	apperrors "github.com/target/mmk-crawlsync/internal/errors"
)

var errNotJSON = errors.New("content is not json")

// scanJSON selects row objects with the schema's JMESPath expression, or uses a
// top-level array directly. Object keys are matched like table headers.
func (e *Extractor) scanJSON(content string, in Input, observed time.Time) (scan, error) {
	var res scan
	var data any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return res, fmt.Errorf("%w: %w", errNotJSON, err)
	}

	if expr := in.Schema.def.JSONRows; expr != "" {
		out, err := jmespath.Search(expr, data)
		if err != nil {
			return res, apperrors.Wrap(err, apperrors.ErrCodeExtractionFailure, "evaluate json_rows")
		}
		data = out
	}

	rows, ok := data.([]any)
	if !ok {
		return res, nil
	}
	res.matched = true

	for _, r := range rows {
		obj, ok := r.(map[string]any)
		if !ok {
			res.dropped++
			continue
		}
		keys := make([]string, 0, len(obj))
		for k := range obj {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		resolved := e.resolveHeader(in.Schema, keys)

		b := newRow(in.Schema, in.Item, observed)
		for idx, ci := range resolved {
			b.set(ci, obj[keys[idx]])
		}
		if rec, ok := b.finish(); ok {
			res.records = append(res.records, rec)
		} else {
			res.dropped++
		}
	}
	return res, nil
}
