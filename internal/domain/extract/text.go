package extract

import (
	"strings"
	"time"
)

// scanText applies the fallback pattern line by line. Named groups map to column fields.
func (e *Extractor) scanText(text string, in Input, observed time.Time) scan {
	var res scan
	re := in.Schema.fallback
	if re == nil {
		return res
	}

	groups := make(map[int]int)
	for gi, name := range re.SubexpNames() {
		if name == "" {
			continue
		}
		for ci, c := range in.Schema.columns {
			if c.spec.Field == name {
				groups[gi] = ci
			}
		}
	}
	if len(groups) == 0 {
		return res
	}

	for _, line := range strings.Split(text, "\n") {
		line = cleanText(line)
		if line == "" {
			continue
		}
		for _, m := range re.FindAllStringSubmatch(line, -1) {
			res.matched = true
			b := newRow(in.Schema, in.Item, observed)
			for gi, ci := range groups {
				b.set(ci, m[gi])
			}
			if rec, ok := b.finish(); ok {
				res.records = append(res.records, rec)
			} else {
				res.dropped++
			}
		}
	}
	return res
}
