package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"leadcaller/config"
	"leadcaller/correlation"
	"leadcaller/metrics"
	"leadcaller/models"
	"leadcaller/scraper/maps"
	"leadcaller/utils"
	"leadcaller/voice"
)

// ErrCycleInProgress is returned when a search is started while another
// one is still running.
var ErrCycleInProgress = eris.New("campaign: a search cycle is already running")

// ValidationError lists the missing search fields.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("campaign: %s required", strings.Join(e.Fields, ", "))
}

// LeadScraper discovers raw leads for a search term.
type LeadScraper interface {
	Scrape(ctx context.Context, searchTerm string, total int) (*maps.Result, error)
}

// CallDispatcher places the outbound call for a cycle.
type CallDispatcher interface {
	Dispatch(ctx context.Context, req voice.DispatchRequest) (*voice.DispatchResult, error)
	Telephony() config.TelephonyConfig
}

// DatasetWriter persists a freshly assembled dataset.
type DatasetWriter interface {
	Replace(ctx context.Context, ds *models.Dataset) error
}

// SearchRequest starts a cycle. Total <= 0 uses the configured default.
type SearchRequest struct {
	SearchTerm string
	Message    string
	Criterion  string
	Total      int
}

// SearchResult is the outcome of one cycle. DispatchErr is set when the
// dataset was built but the call could not be placed.
type SearchResult struct {
	Cycle       *models.Cycle
	Dataset     *models.Dataset
	PageStatus  maps.PageStatus
	Call        *voice.DispatchResult
	DispatchErr error
}

// Campaign runs search cycles one at a time and tracks the active one.
type Campaign struct {
	scraper    LeadScraper
	cleaner    *Cleaner
	datasets   DatasetWriter
	dispatcher CallDispatcher
	sessions   correlation.SessionStore
	qualified  *QualifiedCache
	logger     *utils.Logger

	running sync.Mutex

	mu      sync.RWMutex
	current *models.Cycle
}

func NewCampaign(
	scraper LeadScraper,
	cleaner *Cleaner,
	datasets DatasetWriter,
	dispatcher CallDispatcher,
	sessions correlation.SessionStore,
	qualified *QualifiedCache,
	logger *utils.Logger,
) *Campaign {
	return &Campaign{
		scraper:    scraper,
		cleaner:    cleaner,
		datasets:   datasets,
		dispatcher: dispatcher,
		sessions:   sessions,
		qualified:  qualified,
		logger:     logger,
	}
}

// Current returns the cycle whose dataset and criterion are active.
func (c *Campaign) Current() (*models.Cycle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.current == nil {
		return nil, false
	}
	cp := *c.current
	return &cp, true
}

// Run validates the request, then scrapes, assembles, persists and
// dispatches. The new criterion becomes active once the dataset is stored.
func (c *Campaign) Run(ctx context.Context, req SearchRequest) (*SearchResult, error) {
	var missing []string
	if strings.TrimSpace(req.SearchTerm) == "" {
		missing = append(missing, "search_term")
	}
	if strings.TrimSpace(req.Message) == "" {
		missing = append(missing, "message")
	}
	if strings.TrimSpace(req.Criterion) == "" {
		missing = append(missing, "criterion")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Fields: missing}
	}

	if !c.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer c.running.Unlock()

	cycle := &models.Cycle{
		ID:           uuid.NewString(),
		SearchTerm:   req.SearchTerm,
		FirstMessage: req.Message,
		Criterion:    req.Criterion,
		StartedAt:    time.Now(),
	}
	log := c.logger.Z().With(zap.String("cycle_id", cycle.ID))

	res, err := c.discover(ctx, cycle, req.Total)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.current = cycle
	c.mu.Unlock()

	if _, err := c.qualified.Refresh(ctx, res.Dataset); err != nil {
		log.Warn("could not reset qualified leads", zap.Error(err))
	}

	call, err := c.dispatcher.Dispatch(ctx, voice.DispatchRequest{FirstMessage: req.Message})
	if err != nil {
		res.DispatchErr = err
		return res, nil
	}
	res.Call = call

	_, err = c.sessions.Upsert(ctx, call.CallID, func(s *models.CallSession) error {
		s.CycleID = cycle.ID
		s.CustomerNumber = call.CustomerNumber
		s.AssistantID = call.AssistantID
		s.FirstMessage = req.Message
		return nil
	})
	if err != nil {
		log.Error("could not register call session", zap.String("call_id", call.CallID), zap.Error(err))
	}
	return res, nil
}

// Scrape builds and stores a dataset without placing a call or changing
// the active criterion.
func (c *Campaign) Scrape(ctx context.Context, searchTerm string, total int) (*SearchResult, error) {
	if strings.TrimSpace(searchTerm) == "" {
		return nil, &ValidationError{Fields: []string{"search_term"}}
	}
	if !c.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer c.running.Unlock()

	cycle := &models.Cycle{ID: uuid.NewString(), SearchTerm: searchTerm, StartedAt: time.Now()}
	return c.discover(ctx, cycle, total)
}

func (c *Campaign) discover(ctx context.Context, cycle *models.Cycle, total int) (*SearchResult, error) {
	scraped, err := c.scraper.Scrape(ctx, cycle.SearchTerm, total)
	if err != nil {
		metrics.ScrapeCycles.WithLabelValues("failed").Inc()
		return nil, eris.Wrap(err, "campaign: scrape")
	}
	metrics.ScrapeCycles.WithLabelValues(scraped.PageStatus.String()).Inc()

	demoPhone := c.dispatcher.Telephony().CustomerNumber
	ds := c.cleaner.Build(cycle.ID, cycle.SearchTerm, demoPhone, scraped.Leads)
	metrics.LeadsDiscovered.Observe(float64(len(ds.Leads)))

	if err := c.datasets.Replace(ctx, ds); err != nil {
		return nil, eris.Wrap(err, "campaign: store dataset")
	}

	c.logger.Info("[campaign] Cycle %s: %d leads for %q (%s)",
		cycle.ID, len(ds.Leads), cycle.SearchTerm, scraped.PageStatus)

	return &SearchResult{Cycle: cycle, Dataset: ds, PageStatus: scraped.PageStatus}, nil
}
