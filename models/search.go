package models

// SearchFilter narrows a storefront search. It is supplied once per crawl and
// never modified while the crawl runs.
type SearchFilter struct {
	// Term is the search keyword. Required.
	Term string `json:"term" binding:"required"`

	// HighPrice and LowPrice bound the listed price. Omitted from the query
	// when nil or zero.
	HighPrice *float64 `json:"high_price,omitempty" binding:"omitempty,gt=0"`
	LowPrice  *float64 `json:"low_price,omitempty" binding:"omitempty,gt=0"`

	// Seller restricts results to one merchant (e.g. ATVPDKIKX0DER for Amazon US).
	// Takes precedence over Shipper.
	Seller string `json:"seller,omitempty"`

	// Shipper restricts results by fulfilling party (e.g. 1249137011).
	Shipper string `json:"shipper,omitempty"`
}

// ResultItem is one product card from a search results page.
//
// Price is "" when the card has no price, while AltPrice and Coupon are nil
// when their nodes are absent.
type ResultItem struct {
	Name     string  `json:"name"`
	Price    string  `json:"price"`
	AltPrice *string `json:"altprice"`
	Image    string  `json:"image"`
	Coupon   *string `json:"coupon"`
	Link     string  `json:"link"`

	// ASIN is the catalog id the link was built from.
	ASIN string `json:"-"`
}

// SearchPageResult is everything extracted from a single results page.
type SearchPageResult struct {
	Items       []ResultItem `json:"items"`
	CurrentPage int          `json:"current_page"`

	// MaxPage is nil when the page has no pagination control, which means
	// there are no further pages.
	MaxPage *int `json:"max_page"`
}

// LastPage returns MaxPage, or 0 when it is unknown.
func (r *SearchPageResult) LastPage() int {
	if r == nil || r.MaxPage == nil {
		return 0
	}
	return *r.MaxPage
}
