package models

import "time"

// RawRecord is one unprocessed row of a listing export keyed by column name.
// A missing key means the source cell was empty or one of the NA tokens.
type RawRecord map[string]string

// Filled returns the number of non-null cells in the record
func (r RawRecord) Filled() int {
	return len(r)
}

// RawTable is the merged per-city export table
type RawTable struct {
	Columns []string
	Records []RawRecord
}

// HasColumn reports whether the merged table carries the given column
func (t *RawTable) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Listing is a cleaned, anonymized listing ready for loading.
// Nil pointers are stored as NULL.
type Listing struct {
	ListingID int64
	// HostID is 0 when the export carried no host
	HostID int64

	City         string
	Neighborhood *string
	PropertyType *string
	RoomType     *string

	Accommodates    *int64
	Bedrooms        *int64
	Beds            *int64
	Price           *int64
	MinimumNights   *int64
	MaximumNights   *int64
	HasAvailability *int64
	InstantBookable *int64
	License         *string

	Availability30  *int64
	Availability60  *int64
	Availability90  *int64
	Availability365 *int64

	NumberOfReviews        *int64
	NumberOfReviewsLast12m *int64
	NumberOfReviewsLast30d *int64
	FirstReview            *time.Time
	LastReview             *time.Time

	ReviewScoresRating        *float64
	ReviewScoresAccuracy      *float64
	ReviewScoresCleanliness   *float64
	ReviewScoresCheckin       *float64
	ReviewScoresCommunication *float64
	ReviewScoresLocation      *float64
	ReviewScoresValue         *float64

	// Amenities holds the free-text amenity names exactly as exported
	Amenities []string
}

// Host is a deduplicated, anonymized host
type Host struct {
	HostID                 int64
	HostSince              *time.Time
	HostResponseTime       *string
	HostResponseRate       *float64
	HostAcceptanceRate     *float64
	HostIsSuperhost        *int64
	HostListingsCount      *int64
	HostTotalListingsCount *int64
	HostHasProfilePic      *int64
	HostIdentityVerified   *int64
}

// CleanDataset is the output of the cleaner and the input of the loader
type CleanDataset struct {
	Listings []*Listing
	Hosts    []*Host

	// Lookups holds distinct source values per lookup source column
	Lookups map[string][]string

	// FormatErrors counts malformed cells by column
	FormatErrors map[string]int

	// Excluded counts dropped rows by reason
	Excluded map[string]int
}

// DateLayout is the on-disk format of review and host dates
const DateLayout = "2006-01-02"

// FormatDate renders an optional date as stored in the schema
func FormatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(DateLayout)
	return &s
}
