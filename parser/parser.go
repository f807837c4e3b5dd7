// Package parser turns a rendered search results page into result items and
// pagination bounds.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/smarteraz/models"
)

// Parse extracts every organic result card and the pagination bounds from
// content. Links are built as baseURL + "dp/" + catalog id.
//
// A page without a pagination control yields CurrentPage 1 and a nil
// MaxPage. Any required element that is missing fails the whole page.
func Parse(content, baseURL string) (*models.SearchPageResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, models.NewCrawlError(models.ErrCodeParse, "failed to parse page markup", err)
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	result := &models.SearchPageResult{Items: []models.ResultItem{}}

	var parseErr error
	doc.FindMatcher(resultSelector).EachWithBreak(func(i int, card *goquery.Selection) bool {
		item, err := parseItem(card, baseURL)
		if err != nil {
			parseErr = models.NewCrawlError(models.ErrCodeParse, fmt.Sprintf("result %d: %v", i, err), nil)
			return false
		}
		result.Items = append(result.Items, item)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if err := parsePagination(doc.Selection, result); err != nil {
		return nil, models.NewCrawlError(models.ErrCodeParse, err.Error(), nil)
	}
	return result, nil
}

func parseItem(card *goquery.Selection, baseURL string) (models.ResultItem, error) {
	var item models.ResultItem

	asin, ok := asinRule.extract(card)
	if !ok {
		return item, fmt.Errorf("missing %s", asinRule.Field)
	}
	item.ASIN = asin
	item.Link = baseURL + "dp/" + asin

	for _, f := range itemFields {
		v, ok := f.extract(card)
		if ok {
			f.set(&item, &v)
			continue
		}
		switch f.Missing {
		case Required:
			return item, fmt.Errorf("missing %s (asin %s)", f.Field, asin)
		case Empty:
			empty := ""
			f.set(&item, &empty)
		case Null:
			f.set(&item, nil)
		}
	}
	return item, nil
}

func parsePagination(doc *goquery.Selection, result *models.SearchPageResult) error {
	nav := doc.FindMatcher(paginationSelector).First()
	if nav.Length() == 0 {
		result.CurrentPage = 1
		result.MaxPage = nil
		return nil
	}

	maxPage, err := intField(nav, maxPageRule)
	if err != nil {
		return err
	}
	current, err := intField(nav, currentPageRule)
	if err != nil {
		return err
	}
	result.CurrentPage = current
	result.MaxPage = &maxPage
	return nil
}

func intField(s *goquery.Selection, r Rule) (int, error) {
	raw, ok := r.extract(s)
	if !ok {
		return 0, fmt.Errorf("pagination: missing %s", r.Field)
	}
	n, err := leadingInt(raw)
	if err != nil {
		return 0, fmt.Errorf("pagination: %s %q is not a number", r.Field, raw)
	}
	return n, nil
}

// leadingInt parses the leading run of digits, ignoring group separators,
// so "1,024" and "7 (current)" both work.
func leadingInt(s string) (int, error) {
	var digits strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case (r == ',' || r == '.') && digits.Len() > 0:
		default:
			if digits.Len() > 0 {
				return strconv.Atoi(digits.String())
			}
		}
	}
	return strconv.Atoi(digits.String())
}
