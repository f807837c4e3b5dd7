// Package search builds storefront search URLs.
package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/use-agent/smarteraz/models"
)

// DefaultDomain is the storefront used when none is configured.
const DefaultDomain = "www.amazon.com"

// Query parameter names understood by the search endpoint.
const (
	paramTerm      = "k"
	paramHighPrice = "high-price"
	paramLowPrice  = "low-price"
	paramRefine    = "rh"
	paramPage      = "page"

	sellerRefinement  = "p_6:"
	shipperRefinement = "p_76:"
)

// BaseURL returns the storefront root for a domain, always with a trailing
// slash: "www.amazon.co.uk" -> "https://www.amazon.co.uk/".
func BaseURL(domain string) string {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		domain = DefaultDomain
	}
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	return "https://" + strings.TrimRight(domain, "/") + "/"
}

// Query encodes the term, optional filters and page number. Parameters are
// emitted in a fixed order (k, high-price, low-price, rh, page) so the same
// inputs always produce the same string.
func Query(page int, f models.SearchFilter) string {
	var b strings.Builder
	add := func(key, value string) {
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(value))
	}

	add(paramTerm, f.Term)
	if f.HighPrice != nil && *f.HighPrice != 0 {
		add(paramHighPrice, formatPrice(*f.HighPrice))
	}
	if f.LowPrice != nil && *f.LowPrice != 0 {
		add(paramLowPrice, formatPrice(*f.LowPrice))
	}
	switch {
	case f.Seller != "":
		add(paramRefine, sellerRefinement+f.Seller)
	case f.Shipper != "":
		add(paramRefine, shipperRefinement+f.Shipper)
	}
	add(paramPage, strconv.Itoa(page))
	return b.String()
}

// URL resolves "/s?<query>" against baseURL.
func URL(baseURL string, page int, f models.SearchFilter) string {
	return strings.TrimRight(baseURL, "/") + "/s?" + Query(page, f)
}

// formatPrice renders a price bound without trailing zeros: 25 -> "25",
// 19.5 -> "19.5".
func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
