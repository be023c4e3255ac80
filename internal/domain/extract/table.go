package extract

import (
	"slices"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/antzucaro/matchr"
	"golang.org/x/net/html"
)

// headerScanDepth is how many leading rows of a table may hold the header.
const headerScanDepth = 3

// scanTables reads the first table whose header satisfies the schema.
func (e *Extractor) scanTables(doc *goquery.Document, in Input, observed time.Time) scan {
	var res scan
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		rows := table.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Closest("table").IsSelection(table)
		})

		headerAt, resolved := -1, map[int]int(nil)
		rows.EachWithBreak(func(i int, tr *goquery.Selection) bool {
			if i >= headerScanDepth {
				return false
			}
			m := e.resolveHeader(in.Schema, cellTexts(tr))
			if in.Schema.headerSatisfied(m) {
				headerAt, resolved = i, m
				return false
			}
			return true
		})
		if headerAt < 0 {
			return true
		}

		res.matched = true
		rows.Slice(headerAt+1, rows.Length()).Each(func(_ int, tr *goquery.Selection) {
			cells := cellTexts(tr)
			if blankRow(cells) {
				return
			}
			b := newRow(in.Schema, in.Item, observed)
			for idx, ci := range resolved {
				if idx < len(cells) {
					b.set(ci, cells[idx])
				}
			}
			if rec, ok := b.finish(); ok {
				res.records = append(res.records, rec)
			} else {
				res.dropped++
			}
		})
		return false
	})
	return res
}

// resolveHeader maps cell index to column index. Exact label matches win;
// remaining cells are matched fuzzily against still-unclaimed columns.
func (e *Extractor) resolveHeader(s *Schema, cells []string) map[int]int {
	resolved := make(map[int]int)
	claimed := make(map[int]bool)
	norm := make([]string, len(cells))
	for i, c := range cells {
		norm[i] = normalizeLabel(c)
	}

	for i, n := range norm {
		if n == "" {
			continue
		}
		for ci, col := range s.columns {
			if claimed[ci] {
				continue
			}
			if slices.Contains(col.labels, n) {
				resolved[i], claimed[ci] = ci, true
				break
			}
		}
	}

	for i, n := range norm {
		if _, ok := resolved[i]; ok || n == "" {
			continue
		}
		best, bestScore := -1, e.threshold
		for ci, col := range s.columns {
			if claimed[ci] {
				continue
			}
			for _, l := range col.labels {
				if score := matchr.JaroWinkler(n, l, false); score >= bestScore {
					best, bestScore = ci, score
				}
			}
		}
		if best >= 0 {
			resolved[i], claimed[best] = best, true
		}
	}
	return resolved
}

func cellTexts(tr *goquery.Selection) []string {
	cells := tr.ChildrenFiltered("td, th")
	out := make([]string, 0, cells.Length())
	cells.Each(func(_ int, td *goquery.Selection) {
		out = append(out, cleanText(td.Text()))
	})
	return out
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true, "pre": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"table": true, "section": true, "article": true,
}

// visibleText renders text with line breaks at block boundaries, skipping scripts and styles.
func visibleText(sel *goquery.Selection) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" || n.Data == "noscript" {
				return
			}
			if n.Data == "td" || n.Data == "th" {
				b.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			b.WriteByte('\n')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return b.String()
}
