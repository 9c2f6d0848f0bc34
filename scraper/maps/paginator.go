package maps

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
)

// PageStatus says why pagination stopped.
type PageStatus int

const (
	// PageComplete means the requested total was reached.
	PageComplete PageStatus = iota
	// PageStalled means the anchor count stopped growing below the total.
	PageStalled
	// PagePartial means the iteration guard fired before either condition.
	PagePartial
)

func (s PageStatus) String() string {
	switch s {
	case PageComplete:
		return "complete"
	case PageStalled:
		return "stalled"
	case PagePartial:
		return "partial"
	}
	return "unknown"
}

// PageResult is the bounded, ordered list of listing handles found.
type PageResult struct {
	Handles    []ListingHandle
	Status     PageStatus
	Iterations int
}

// Paginate scrolls the results feed until at least total anchors have
// rendered or the count stops growing between two polls. maxIterations
// bounds the loop; zero or less leaves it unbounded.
func Paginate(ctx context.Context, s Surface, total, maxIterations int, wait time.Duration) (*PageResult, error) {
	if total <= 0 {
		return nil, eris.Errorf("maps: paginate: total must be positive, got %d", total)
	}

	previous := 0
	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "maps: paginate")
		}
		if err := s.ScrollFeed(ctx); err != nil {
			return nil, eris.Wrap(err, "maps: scroll feed")
		}
		if err := s.WaitFor(ctx, ListingAnchorLocator, wait); err != nil {
			return nil, eris.Wrap(err, "maps: wait for listings")
		}

		current, err := s.Count(ctx, ListingAnchorLocator)
		if err != nil {
			return nil, eris.Wrap(err, "maps: count listings")
		}

		switch {
		case current >= total:
			return collect(ctx, s, total, PageComplete, iter)
		case current == previous:
			return collect(ctx, s, current, PageStalled, iter)
		case maxIterations > 0 && iter >= maxIterations:
			return collect(ctx, s, current, PagePartial, iter)
		}
		previous = current
	}
}

func collect(ctx context.Context, s Surface, n int, status PageStatus, iter int) (*PageResult, error) {
	hrefs, err := s.Hrefs(ctx, n)
	if err != nil {
		return nil, eris.Wrap(err, "maps: read listing hrefs")
	}

	handles := make([]ListingHandle, n)
	for i := range handles {
		handles[i] = ListingHandle{Index: i}
		if i < len(hrefs) {
			handles[i].Href = hrefs[i]
		}
	}
	return &PageResult{Handles: handles, Status: status, Iterations: iter}, nil
}
