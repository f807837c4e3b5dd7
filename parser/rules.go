package parser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/smarteraz/models"
)

// Pick selects which matched elements contribute to a field.
type Pick int

const (
	// PickAll concatenates the text of every match.
	PickAll Pick = iota
	// PickFirst uses only the first match.
	PickFirst
	// PickLast uses only the last match.
	PickLast
)

// Missing decides what happens when a field's element is absent or empty.
type Missing int

const (
	// Required fields fail the parse with a PARSE_ERROR.
	Required Missing = iota
	// Empty fields become "".
	Empty
	// Null fields become nil.
	Null
)

// Rule describes how one field is read out of an element.
type Rule struct {
	Field string

	// Within, when set, narrows the search to matches of this selector first.
	Within cascadia.Selector

	// Selector picks the element(s) holding the value. Nil means the
	// element the rule is applied to.
	Selector cascadia.Selector

	Pick Pick

	// Attr reads an attribute instead of text.
	Attr string

	Missing Missing
}

// extract applies the rule to s. ok is false when the element or value is absent.
func (r Rule) extract(s *goquery.Selection) (value string, ok bool) {
	target := s
	if r.Within != nil {
		target = target.FindMatcher(r.Within)
	}
	if r.Selector != nil {
		target = target.FindMatcher(r.Selector)
	}
	switch r.Pick {
	case PickFirst:
		target = target.First()
	case PickLast:
		target = target.Last()
	}
	if target.Length() == 0 {
		return "", false
	}

	if r.Attr != "" {
		value, ok = target.Attr(r.Attr)
	} else {
		value, ok = target.Text(), true
	}
	value = strings.TrimSpace(value)
	return value, ok && value != ""
}

// itemField pairs a rule with the ResultItem field it fills. set receives nil
// for an absent Null field.
type itemField struct {
	Rule
	set func(item *models.ResultItem, v *string)
}

func sel(s string) cascadia.Selector { return cascadia.MustCompile(s) }

var (
	// resultSelector matches organic result cards. Sponsored cards carry
	// the AdHolder class.
	resultSelector = sel(`[data-component-type="s-search-result"].s-result-item:not(.AdHolder)`)

	asinRule = Rule{Field: "asin", Attr: "data-asin", Missing: Required}

	itemFields = []itemField{
		{
			Rule: Rule{Field: "image", Selector: sel(".s-image"), Pick: PickFirst, Attr: "src", Missing: Required},
			set:  func(it *models.ResultItem, v *string) { it.Image = *v },
		},
		{
			Rule: Rule{Field: "name", Selector: sel(".a-size-medium.a-color-base.a-text-normal"), Pick: PickAll, Missing: Required},
			set:  func(it *models.ResultItem, v *string) { it.Name = *v },
		},
		{
			Rule: Rule{
				Field:    "price",
				Within:   sel(".a-price:not([data-a-strike])"),
				Selector: sel(".a-offscreen"),
				Pick:     PickFirst,
				Missing:  Empty,
			},
			set: func(it *models.ResultItem, v *string) { it.Price = *v },
		},
		{
			Rule: Rule{
				Field:    "altprice",
				Within:   sel(".a-section.a-spacing-none.a-spacing-top-mini"),
				Selector: sel(`[data-action="s-show-all-offers-display"] ~ span.a-color-base`),
				Pick:     PickFirst,
				Missing:  Null,
			},
			set: func(it *models.ResultItem, v *string) { it.AltPrice = v },
		},
		{
			Rule: Rule{
				Field:    "coupon",
				Within:   sel(".s-coupon-unclipped"),
				Selector: sel(".s-coupon-highlight-color"),
				Pick:     PickAll,
				Missing:  Null,
			},
			set: func(it *models.ResultItem, v *string) { it.Coupon = v },
		},
	}

	paginationSelector = sel(".s-pagination-strip")

	maxPageRule = Rule{
		Field:    "max_page",
		Selector: sel(".s-pagination-item:not(.s-pagination-next)"),
		Pick:     PickLast,
		Missing:  Required,
	}

	currentPageRule = Rule{
		Field:    "current_page",
		Selector: sel(".s-pagination-selected"),
		Pick:     PickFirst,
		Missing:  Required,
	}
)
