package models

import (
	"strings"
	"time"
)

// NotAvailable is the sentinel written for fields that could not be read
// from the listing surface.
const NotAvailable = "N/A"

// Persisted column names, in schema order.
const (
	ColName          = "Names"
	ColWebsite       = "Website"
	ColIntroduction  = "Introduction"
	ColPhone         = "Phone Number"
	ColAddress       = "Address"
	ColReviewCount   = "Review Count"
	ColAverageRating = "Average Review Count"
	ColStoreShopping = "Store Shopping"
	ColInStorePickup = "In Store Pickup"
	ColDelivery      = "Delivery"
	ColType          = "Type"
	ColOpensAt       = "Opens At"
	ColQuestion      = "Questions"
	ColAnswer        = "Answers"
	ColMeetsCriteria = "Meet Criteria"
)

// Columns lists every dataset column in persisted order.
var Columns = []string{
	ColName, ColWebsite, ColIntroduction, ColPhone, ColAddress,
	ColReviewCount, ColAverageRating, ColStoreShopping, ColInStorePickup,
	ColDelivery, ColType, ColOpensAt, ColQuestion, ColAnswer, ColMeetsCriteria,
}

// RawLead holds the per-listing strings exactly as read from the browser,
// before normalisation.
type RawLead struct {
	Name          string
	Address       string
	Website       string
	Phone         string
	Type          string
	Introduction  string
	ReviewCount   string
	AverageRating string
	StoreShopping bool
	InStorePickup bool
	Delivery      bool
	OpensAt       string
}

// Lead is one discovered business plus any later call outcome.
type Lead struct {
	Name          string
	Website       string
	Introduction  string
	Phone         string
	Address       string
	ReviewCount   string
	AverageRating string
	StoreShopping bool
	InStorePickup bool
	Delivery      bool
	Type          string
	OpensAt       string
	Question      string
	Answer        string
	MeetsCriteria bool
}

// DedupKey is the (name, phone, address) triple that identifies a lead
// within a dataset.
type DedupKey struct {
	Name    string
	Phone   string
	Address string
}

// Key returns the lead's deduplication key.
func (l *Lead) Key() DedupKey {
	return DedupKey{Name: l.Name, Phone: l.Phone, Address: l.Address}
}

// Values renders the lead as column -> cell text.
func (l *Lead) Values() map[string]string {
	return map[string]string{
		ColName:          l.Name,
		ColWebsite:       l.Website,
		ColIntroduction:  l.Introduction,
		ColPhone:         l.Phone,
		ColAddress:       l.Address,
		ColReviewCount:   l.ReviewCount,
		ColAverageRating: l.AverageRating,
		ColStoreShopping: yesNo(l.StoreShopping),
		ColInStorePickup: yesNo(l.InStorePickup),
		ColDelivery:      yesNo(l.Delivery),
		ColType:          l.Type,
		ColOpensAt:       l.OpensAt,
		ColQuestion:      l.Question,
		ColAnswer:        l.Answer,
		ColMeetsCriteria: trueFalse(l.MeetsCriteria),
	}
}

// LeadFromValues is the inverse of Values. Missing columns read as empty.
func LeadFromValues(v map[string]string) *Lead {
	return &Lead{
		Name:          v[ColName],
		Website:       v[ColWebsite],
		Introduction:  v[ColIntroduction],
		Phone:         v[ColPhone],
		Address:       v[ColAddress],
		ReviewCount:   v[ColReviewCount],
		AverageRating: v[ColAverageRating],
		StoreShopping: parseFlag(v[ColStoreShopping]),
		InStorePickup: parseFlag(v[ColInStorePickup]),
		Delivery:      parseFlag(v[ColDelivery]),
		Type:          v[ColType],
		OpensAt:       v[ColOpensAt],
		Question:      v[ColQuestion],
		Answer:        v[ColAnswer],
		MeetsCriteria: parseFlag(v[ColMeetsCriteria]),
	}
}

// DemoLeadName names the synthetic row that stands in for the call target.
const DemoLeadName = "Demo Lead"

// NewDemoLead returns the placeholder lead whose phone number is the
// configured call target, so a call to an undiscovered number still has a
// row to correlate against.
func NewDemoLead(phone string) *Lead {
	return &Lead{
		Name:         DemoLeadName,
		Phone:        phone,
		Introduction: "Placeholder row for the configured call target",
	}
}

// Dataset is the ordered set of leads produced by one search cycle.
type Dataset struct {
	CycleID    string
	SearchTerm string
	CreatedAt  time.Time
	Leads      []*Lead
}

// FindByPhone returns the first lead whose phone number matches exactly.
func (d *Dataset) FindByPhone(phone string) (*Lead, int) {
	if d == nil {
		return nil, -1
	}
	for i, l := range d.Leads {
		if l.Phone == phone {
			return l, i
		}
	}
	return nil, -1
}

// PresentColumns returns the columns that hold at least one non-empty cell,
// in schema order.
func (d *Dataset) PresentColumns() []string {
	present := make(map[string]bool, len(Columns))
	for _, l := range d.Leads {
		for col, val := range l.Values() {
			if val != "" {
				present[col] = true
			}
		}
	}
	cols := make([]string, 0, len(Columns))
	for _, c := range Columns {
		if present[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// Records renders every lead restricted to the present columns.
func (d *Dataset) Records() []map[string]string {
	cols := d.PresentColumns()
	out := make([]map[string]string, 0, len(d.Leads))
	for _, l := range d.Leads {
		all := l.Values()
		rec := make(map[string]string, len(cols))
		for _, c := range cols {
			rec[c] = all[c]
		}
		out = append(out, rec)
	}
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func trueFalse(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

func parseFlag(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "true", "1":
		return true
	}
	return false
}
