package maps

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"leadcaller/models"
	"leadcaller/utils"
)

// Locators holds the XPath of every field on a listing's detail view.
type Locators struct {
	DetailHeader  string
	Name          string
	Address       string
	Website       string
	Phone         string
	ReviewCount   string
	ReviewAverage string
	Info          string
	OpensAt       string
	Type          string
	Introduction  string
}

// DefaultLocators matches the map-search detail panel.
var DefaultLocators = Locators{
	DetailHeader:  `//div[@class="TIHn2 "]//h1[@class="DUwDvf lfPIob"]`,
	Name:          `//div[@class="TIHn2 "]//h1[@class="DUwDvf lfPIob"]`,
	Address:       `//button[@data-item-id="address"]//div[contains(@class, "fontBodyMedium")]`,
	Website:       `//a[@data-item-id="authority"]//div[contains(@class, "fontBodyMedium")]`,
	Phone:         `//button[contains(@data-item-id, "phone:tel:")]//div[contains(@class, "fontBodyMedium")]`,
	ReviewCount:   `//div[@class="TIHn2 "]//div[@class="fontBodyMedium dmRWX"]//div//span//span//span[@aria-label]`,
	ReviewAverage: `//div[@class="TIHn2 "]//div[@class="fontBodyMedium dmRWX"]//div//span[@aria-hidden]`,
	Info:          `//div[@class="LTs0Rc"][1]`,
	OpensAt:       `//button[contains(@data-item-id, "oh")]//div[contains(@class, "fontBodyMedium")]`,
	Type:          `//div[@class="LBgpqf"]//button[@class="DkEaL "]`,
	Introduction:  `//div[@class="WeS02d fontBodyMedium"]//div[@class="PYvSYb "]`,
}

// columns are the per-field accumulators. Row i of every slice describes
// the same listing.
type columns struct {
	names, addresses, websites, phones, types, intros []string
	reviewCounts, reviewAverages, opensAt            []string
	shopping, pickup, delivery                       []bool
}

func (c *columns) len() int { return len(c.names) }

// Assembler walks listing handles and reads every field of each one.
type Assembler struct {
	locators     Locators
	fieldTimeout time.Duration
	pacer        *utils.Pacer
	logger       *utils.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(locators Locators, fieldTimeout time.Duration, pacer *utils.Pacer, logger *utils.Logger) *Assembler {
	if pacer == nil {
		pacer = utils.NewPacer(0)
	}
	return &Assembler{locators: locators, fieldTimeout: fieldTimeout, pacer: pacer, logger: logger}
}

// Assemble visits every handle in order and returns one RawLead per
// listing whose detail view could be opened.
func (a *Assembler) Assemble(ctx context.Context, s Surface, handles []ListingHandle) ([]*models.RawLead, error) {
	var cols columns
	loc := a.locators

	for _, h := range handles {
		if err := a.pacer.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "maps: pace listing visits")
		}
		if err := s.Select(ctx, h); err != nil {
			a.logger.Warn("[maps] Could not open listing %d (%s): %v", h.Index, h.Href, err)
			continue
		}
		if err := s.WaitFor(ctx, loc.DetailHeader, a.fieldTimeout); err != nil {
			a.logger.Warn("[maps] Detail view for listing %d never rendered: %v", h.Index, err)
			continue
		}

		ExtractField(ctx, s, loc.Name, &cols.names, a.fieldTimeout, a.logger)
		ExtractField(ctx, s, loc.Address, &cols.addresses, a.fieldTimeout, a.logger)
		ExtractField(ctx, s, loc.Website, &cols.websites, a.fieldTimeout, a.logger)
		ExtractField(ctx, s, loc.Phone, &cols.phones, a.fieldTimeout, a.logger)
		ExtractField(ctx, s, loc.Type, &cols.types, a.fieldTimeout, a.logger)
		ExtractField(ctx, s, loc.Introduction, &cols.intros, a.fieldTimeout, a.logger)

		cols.reviewCounts = append(cols.reviewCounts, readOr(ctx, s, loc.ReviewCount, a.fieldTimeout, "", a.logger))
		cols.reviewAverages = append(cols.reviewAverages, readOr(ctx, s, loc.ReviewAverage, a.fieldTimeout, "", a.logger))

		shop, pickup, delivery := a.commerceFlags(ctx, s)
		cols.shopping = append(cols.shopping, shop)
		cols.pickup = append(cols.pickup, pickup)
		cols.delivery = append(cols.delivery, delivery)

		cols.opensAt = append(cols.opensAt, readOr(ctx, s, loc.OpensAt, a.fieldTimeout, "", a.logger))

		a.logger.Debug("[maps] Listing %d extracted: %s", h.Index, cols.names[cols.len()-1])
	}

	return cols.rows(), nil
}

// commerceFlags derives the three flags from one read of the info block.
// A failed read yields false for all three together.
func (a *Assembler) commerceFlags(ctx context.Context, s Surface) (shop, pickup, delivery bool) {
	info, err := s.Text(ctx, a.locators.Info, a.fieldTimeout)
	if err != nil {
		a.logger.Warn("[maps] Skipping store info: %v", err)
		return false, false, false
	}
	info = strings.ToLower(info)
	return strings.Contains(info, "shop"),
		strings.Contains(info, "pickup"),
		strings.Contains(info, "delivery")
}

func (c *columns) rows() []*models.RawLead {
	out := make([]*models.RawLead, c.len())
	for i := range out {
		out[i] = &models.RawLead{
			Name:          c.names[i],
			Address:       c.addresses[i],
			Website:       c.websites[i],
			Phone:         c.phones[i],
			Type:          c.types[i],
			Introduction:  c.intros[i],
			ReviewCount:   c.reviewCounts[i],
			AverageRating: c.reviewAverages[i],
			StoreShopping: c.shopping[i],
			InStorePickup: c.pickup[i],
			Delivery:      c.delivery[i],
			OpensAt:       c.opensAt[i],
		}
	}
	return out
}
