package models

// DatasetReport holds summary figures computed over an assembled dataset.
type DatasetReport struct {
	TotalLeads    int
	WithWebsite   int
	WithPhone     int
	Qualified     int
	AverageRating float64
	TopRated      []*Lead
	LeadsByType   map[string]int
}
