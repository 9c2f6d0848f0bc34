package maps

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var errNotFound = errors.New("element not found")

// fakeSurface is a scripted Surface. anchorCounts feeds successive listing
// anchor counts (the last value repeats); listings holds, per listing, the
// text of every locator present on its detail view.
type fakeSurface struct {
	anchorCounts []int
	countCalls   int
	scrolls      int

	listings   []map[string]string
	failText   map[string]bool
	selectErrs map[int]error
	noDetail   map[int]bool
	openErr    error
	waitErr    error

	selected int
	closed   bool
}

func (f *fakeSurface) Open(ctx context.Context, searchTerm string) error { return f.openErr }

func (f *fakeSurface) ScrollFeed(ctx context.Context) error {
	f.scrolls++
	return nil
}

func (f *fakeSurface) WaitFor(ctx context.Context, locator string, timeout time.Duration) error {
	if locator == ListingAnchorLocator {
		return f.waitErr
	}
	if f.noDetail[f.selected] {
		return context.DeadlineExceeded
	}
	return nil
}

func (f *fakeSurface) Count(ctx context.Context, locator string) (int, error) {
	if locator == ListingAnchorLocator {
		if len(f.anchorCounts) == 0 {
			return 0, nil
		}
		i := f.countCalls
		if i >= len(f.anchorCounts) {
			i = len(f.anchorCounts) - 1
		}
		f.countCalls++
		return f.anchorCounts[i], nil
	}
	if _, ok := f.current()[locator]; ok {
		return 1, nil
	}
	return 0, nil
}

func (f *fakeSurface) Hrefs(ctx context.Context, n int) ([]string, error) {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("https://www.google.com/maps/place/listing-%d", i)
	}
	return out, nil
}

func (f *fakeSurface) Text(ctx context.Context, locator string, timeout time.Duration) (string, error) {
	if f.failText[locator] {
		return "", context.DeadlineExceeded
	}
	if v, ok := f.current()[locator]; ok {
		return v, nil
	}
	return "", errNotFound
}

func (f *fakeSurface) Select(ctx context.Context, h ListingHandle) error {
	if err := f.selectErrs[h.Index]; err != nil {
		return err
	}
	f.selected = h.Index
	return nil
}

func (f *fakeSurface) Close() error {
	f.closed = true
	return nil
}

func (f *fakeSurface) current() map[string]string {
	if f.selected < 0 || f.selected >= len(f.listings) {
		return nil
	}
	return f.listings[f.selected]
}

// listing builds a detail view with every field present.
func listing(name, phone, address string) map[string]string {
	loc := DefaultLocators
	return map[string]string{
		loc.Name:          name,
		loc.Phone:         phone,
		loc.Address:       address,
		loc.Website:       "example.com",
		loc.Type:          "Coffee shop",
		loc.Introduction:  "Small-batch roaster",
		loc.ReviewCount:   "(1,204)",
		loc.ReviewAverage: "4,6",
		loc.Info:          "In-store shopping · In-store pickup · Delivery",
		loc.OpensAt:       "Opens 7 AM",
	}
}
