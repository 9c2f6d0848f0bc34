package services

import (
	"strings"
	"time"
	"unicode"

	"leadcaller/models"
	"leadcaller/utils"
)

// Cleaner transforms RawLeads into the deduplicated Dataset for one cycle.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Build prepends the demo lead for demoPhone, normalises every raw lead and
// drops later rows whose (name, phone, address) triple was already seen.
// Row order is discovery order with the demo row first.
func (c *Cleaner) Build(cycleID, searchTerm, demoPhone string, raw []*models.RawLead) *models.Dataset {
	candidates := make([]*models.Lead, 0, len(raw)+1)
	candidates = append(candidates, models.NewDemoLead(demoPhone))
	for _, r := range raw {
		candidates = append(candidates, c.normalise(r))
	}

	seen := utils.NewSet[models.DedupKey]()
	leads := make([]*models.Lead, 0, len(candidates))
	for _, l := range candidates {
		if !seen.Add(l.Key()) {
			c.logger.Debug("[cleaner] Duplicate lead skipped: %s / %s", l.Name, l.Phone)
			continue
		}
		leads = append(leads, l)
	}

	c.logger.Info("[cleaner] Built dataset: %d raw -> %d leads (dropped %d duplicates)",
		len(raw), seen.Size()-1, len(candidates)-seen.Size())

	return &models.Dataset{
		CycleID:    cycleID,
		SearchTerm: searchTerm,
		CreatedAt:  time.Now(),
		Leads:      leads,
	}
}

func (c *Cleaner) normalise(r *models.RawLead) *models.Lead {
	return &models.Lead{
		Name:          r.Name,
		Website:       r.Website,
		Introduction:  normaliseText(r.Introduction),
		Phone:         r.Phone,
		Address:       r.Address,
		ReviewCount:   parseReviewCount(r.ReviewCount),
		AverageRating: parseRating(r.AverageRating),
		StoreShopping: r.StoreShopping,
		InStorePickup: r.InStorePickup,
		Delivery:      r.Delivery,
		Type:          r.Type,
		OpensAt:       normaliseText(r.OpensAt),
	}
}

// parseReviewCount strips the parentheses and thousands separators:
// "(1,204)" -> "1204".
func parseReviewCount(raw string) string {
	return strings.NewReplacer("(", "", ")", "", ",", "").Replace(raw)
}

// parseRating drops spaces and treats a comma as the decimal separator:
// "4,6" -> "4.6".
func parseRating(raw string) string {
	return strings.NewReplacer(" ", "", ",", ".").Replace(raw)
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	s = strings.TrimSpace(s)
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
