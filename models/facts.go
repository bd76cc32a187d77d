package models

import "time"

// ListingFact is the denormalized read model of one loaded listing, used by
// the metrics, impact and chart engines.
type ListingFact struct {
	ListingID      int64
	HostID         *int64
	CityID         int64
	City           string
	NeighborhoodID *int64
	Neighborhood   *string
	RoomType       *string
	Price          *int64

	NumberOfReviews    *int64
	FirstReview        *time.Time
	LastReview         *time.Time
	ReviewScoresRating *float64

	HostSince       *time.Time
	HostIsSuperhost bool
	ActiveCurrent   bool
	ActiveBaseline  bool
}

// NamedRef is a lookup row: surrogate key, natural name and optional parent key
type NamedRef struct {
	ID       int64
	Name     string
	ParentID *int64
}

// ActivityFlags are the persisted cohort flags of a listing
type ActivityFlags struct {
	MostRecentQuarter bool
	FourQuartersPrior bool
}
