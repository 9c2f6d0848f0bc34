package maps

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"leadcaller/config"
	"leadcaller/models"
	"leadcaller/utils"
)

// SurfaceFactory opens a fresh rendering surface for one scrape.
type SurfaceFactory func(ctx context.Context) (Surface, error)

// Result is the outcome of one scrape: the raw leads in discovery order and
// how pagination ended.
type Result struct {
	Leads      []*models.RawLead
	PageStatus PageStatus
	Listings   int
}

// Scraper orchestrates the map-search scraping process.
type Scraper struct {
	cfg        config.ScrapeConfig
	logger     *utils.Logger
	newSurface SurfaceFactory
	assembler  *Assembler
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithSurfaceFactory replaces the chromedp surface.
func WithSurfaceFactory(f SurfaceFactory) Option {
	return func(s *Scraper) { s.newSurface = f }
}

// WithLocators overrides the detail-view locators.
func WithLocators(l Locators) Option {
	return func(s *Scraper) {
		s.assembler.locators = l
	}
}

// New creates a ready-to-use Scraper.
func New(cfg config.ScrapeConfig, logger *utils.Logger, opts ...Option) *Scraper {
	s := &Scraper{
		cfg:    cfg,
		logger: logger,
		newSurface: func(context.Context) (Surface, error) {
			return NewChromeSurface(cfg, logger)
		},
		assembler: NewAssembler(DefaultLocators, cfg.FieldTimeout, utils.NewPacer(cfg.VisitInterval), logger),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Scrape searches for searchTerm and extracts up to total listings.
// Listings are visited sequentially on a single surface.
func (s *Scraper) Scrape(ctx context.Context, searchTerm string, total int) (*Result, error) {
	if searchTerm == "" {
		return nil, eris.New("maps: search term is required")
	}
	if total <= 0 {
		total = s.cfg.Total
	}

	s.logger.Info("[maps] Starting scrape for %q, target: %d listings", searchTerm, total)
	started := time.Now()

	surface, err := s.newSurface(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "maps: open surface")
	}
	defer surface.Close()

	if err := surface.Open(ctx, searchTerm); err != nil {
		return nil, err
	}

	page, err := Paginate(ctx, surface, total, s.cfg.MaxScrolls, s.cfg.FieldTimeout)
	if err != nil {
		return nil, err
	}
	if page.Status == PagePartial {
		s.logger.Warn("[maps] Feed never settled after %d scrolls, continuing with %d listings",
			page.Iterations, len(page.Handles))
	}
	s.logger.Info("[maps] Pagination %s after %d scrolls: %d listings", page.Status, page.Iterations, len(page.Handles))

	leads, err := s.assembler.Assemble(ctx, surface, page.Handles)
	if err != nil {
		return nil, err
	}

	s.logger.Info("[maps] Scrape complete in %v, total raw leads: %d", time.Since(started).Round(time.Millisecond), len(leads))
	return &Result{Leads: leads, PageStatus: page.Status, Listings: len(page.Handles)}, nil
}
