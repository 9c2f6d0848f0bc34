package maps

import (
	"context"
	"time"
)

// Locators for the map-search results surface. All are XPath expressions.
const (
	SearchBoxLocator     = `//input[@id="searchboxinput"]`
	ListingAnchorLocator = `//a[contains(@href, "https://www.google.com/maps/place")]`
)

// ListingHandle identifies one listing on the results surface by its
// position among the matched anchors.
type ListingHandle struct {
	Index int
	Href  string
}

// Surface is the rendering surface the scraper drives. The chromedp tab is
// the production implementation; tests substitute a scripted fake.
type Surface interface {
	// Open loads the search surface and submits searchTerm.
	Open(ctx context.Context, searchTerm string) error
	// ScrollFeed scrolls the results feed to its bottom to trigger loading.
	ScrollFeed(ctx context.Context) error
	// WaitFor blocks until at least one element matches locator, or timeout.
	WaitFor(ctx context.Context, locator string, timeout time.Duration) error
	// Count returns the number of elements currently matching locator.
	Count(ctx context.Context, locator string) (int, error)
	// Hrefs returns the href of the first n listing anchors.
	Hrefs(ctx context.Context, n int) ([]string, error)
	// Text returns the visible text of the first match, waiting up to timeout.
	Text(ctx context.Context, locator string, timeout time.Duration) (string, error)
	// Select opens the listing's detail view.
	Select(ctx context.Context, h ListingHandle) error
	Close() error
}
