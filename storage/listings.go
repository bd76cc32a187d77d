package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"rental-insights/models"
)

// nullable unwraps an optional value into a driver argument
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

const insertHost = `INSERT INTO Hosts (host_id, host_since, host_response_time_id, host_response_rate,
	host_acceptance_rate, host_is_superhost, host_listings_count, host_total_listings_count,
	host_has_profile_pic, host_identity_verified) VALUES ` + "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"

// InsertHost writes one host row
func (b *Batch) InsertHost(ctx context.Context, h *models.Host, responseTimeID *int64) error {
	_, err := b.Exec(ctx, insertHost,
		h.HostID,
		nullable(models.FormatDate(h.HostSince)),
		nullable(responseTimeID),
		nullable(h.HostResponseRate),
		nullable(h.HostAcceptanceRate),
		nullable(h.HostIsSuperhost),
		nullable(h.HostListingsCount),
		nullable(h.HostTotalListingsCount),
		nullable(h.HostHasProfilePic),
		nullable(h.HostIdentityVerified),
	)
	return classify("Hosts", strconv.FormatInt(h.HostID, 10), err)
}

// ListingRefs carries the resolved foreign keys of one listing
type ListingRefs struct {
	HostID         *int64
	PropertyTypeID *int64
	RoomTypeID     *int64
	CityID         int64
	NeighborhoodID *int64
}

const insertListingCore = `INSERT INTO ListingsCore (listing_id, host_id, property_type_id, room_type_id,
	accommodates, bedrooms, beds, price, minimum_nights, maximum_nights, has_availability,
	instant_bookable, license, was_active_most_recent_quarter, was_active_four_quarters_prior) VALUES `

// InsertListingCore writes the core row of a listing
func (b *Batch) InsertListingCore(ctx context.Context, l *models.Listing, refs ListingRefs, flags models.ActivityFlags) error {
	_, err := b.Exec(ctx, insertListingCore+placeholders(15),
		l.ListingID,
		nullable(refs.HostID),
		nullable(refs.PropertyTypeID),
		nullable(refs.RoomTypeID),
		nullable(l.Accommodates),
		nullable(l.Bedrooms),
		nullable(l.Beds),
		nullable(l.Price),
		nullable(l.MinimumNights),
		nullable(l.MaximumNights),
		nullable(l.HasAvailability),
		nullable(l.InstantBookable),
		nullable(l.License),
		boolInt(flags.MostRecentQuarter),
		boolInt(flags.FourQuartersPrior),
	)
	return classify("ListingsCore", strconv.FormatInt(l.ListingID, 10), err)
}

// InsertLocation writes the location extension of a listing
func (b *Batch) InsertLocation(ctx context.Context, listingID int64, refs ListingRefs) error {
	_, err := b.Exec(ctx, `INSERT INTO ListingsLocation (listing_id, city_id, neighborhood_id) VALUES (?, ?, ?)`,
		listingID, refs.CityID, nullable(refs.NeighborhoodID))
	return classify("ListingsLocation", strconv.FormatInt(listingID, 10), err)
}

const insertReviews = `INSERT INTO ListingsReviewsSummary (listing_id, number_of_reviews,
	number_of_reviews_last_12m, number_of_reviews_last_30d, first_review, last_review,
	review_scores_rating, review_scores_accuracy, review_scores_cleanliness, review_scores_checkin,
	review_scores_communication, review_scores_location, review_scores_value) VALUES `

// InsertReviewsSummary writes the review extension of a listing
func (b *Batch) InsertReviewsSummary(ctx context.Context, l *models.Listing) error {
	_, err := b.Exec(ctx, insertReviews+placeholders(13),
		l.ListingID,
		nullable(l.NumberOfReviews),
		nullable(l.NumberOfReviewsLast12m),
		nullable(l.NumberOfReviewsLast30d),
		nullable(models.FormatDate(l.FirstReview)),
		nullable(models.FormatDate(l.LastReview)),
		nullable(l.ReviewScoresRating),
		nullable(l.ReviewScoresAccuracy),
		nullable(l.ReviewScoresCleanliness),
		nullable(l.ReviewScoresCheckin),
		nullable(l.ReviewScoresCommunication),
		nullable(l.ReviewScoresLocation),
		nullable(l.ReviewScoresValue),
	)
	return classify("ListingsReviewsSummary", strconv.FormatInt(l.ListingID, 10), err)
}

// InsertAvailability writes the availability extension of a listing
func (b *Batch) InsertAvailability(ctx context.Context, l *models.Listing) error {
	_, err := b.Exec(ctx, `INSERT INTO ListingsAvailability (listing_id, availability_30, availability_60,
	availability_90, availability_365) VALUES (?, ?, ?, ?, ?)`,
		l.ListingID,
		nullable(l.Availability30),
		nullable(l.Availability60),
		nullable(l.Availability90),
		nullable(l.Availability365),
	)
	return classify("ListingsAvailability", strconv.FormatInt(l.ListingID, 10), err)
}

// InsertListingAmenity links a listing to an amenity; it reports false when the pair already existed
func (b *Batch) InsertListingAmenity(ctx context.Context, listingID, amenityID int64) (bool, error) {
	res, err := b.Exec(ctx, `INSERT INTO ListingsAmenities (listing_id, amenity_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
		listingID, amenityID)
	if err != nil {
		return false, classify("ListingsAmenities", fmt.Sprintf("%d/%d", listingID, amenityID), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return true, nil
	}
	return n > 0, nil
}

// ClearImpacts deletes every derived impact row
func (s *Store) ClearImpacts(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, "DELETE FROM AmenityPriceImpacts"); err != nil {
		return fmt.Errorf("failed to clear amenity impacts: %w", err)
	}
	return nil
}

// WriteImpacts inserts one batch of impact rows in its own transaction
func (s *Store) WriteImpacts(ctx context.Context, rows []models.AmenityPriceImpact) error {
	if len(rows) == 0 {
		return nil
	}
	b, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	for _, r := range rows {
		_, err := b.Exec(ctx, `INSERT INTO AmenityPriceImpacts (amenity_id, city_id, neighborhood_id,
	median_price_difference, amenity_count) VALUES (?, ?, ?, ?, ?)`,
			r.AmenityID, nullable(r.CityID), nullable(r.NeighborhoodID), r.MedianPriceDifference, r.AmenityCount)
		if err != nil {
			b.Rollback()
			return classify("AmenityPriceImpacts", strconv.FormatInt(r.AmenityID, 10), err)
		}
	}
	return b.Commit()
}

const factsQuery = `
SELECT
	l.listing_id,
	l.host_id,
	loc.city_id,
	c.city,
	loc.neighborhood_id,
	n.neighborhood,
	rt.room_type,
	l.price,
	r.number_of_reviews,
	r.first_review,
	r.last_review,
	r.review_scores_rating,
	h.host_since,
	COALESCE(h.host_is_superhost, 0),
	l.was_active_most_recent_quarter,
	l.was_active_four_quarters_prior
FROM ListingsCore l
JOIN ListingsLocation loc ON loc.listing_id = l.listing_id
JOIN Cities c ON c.city_id = loc.city_id
LEFT JOIN Neighborhoods n ON n.neighborhood_id = loc.neighborhood_id
LEFT JOIN RoomTypes rt ON rt.room_type_id = l.room_type_id
LEFT JOIN ListingsReviewsSummary r ON r.listing_id = l.listing_id
LEFT JOIN Hosts h ON h.host_id = l.host_id
ORDER BY l.listing_id`

// LoadListingFacts reads every located listing with the attributes the engines aggregate over
func (s *Store) LoadListingFacts(ctx context.Context) ([]models.ListingFact, error) {
	rows, err := s.DB.QueryContext(ctx, factsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing facts: %w", err)
	}
	defer rows.Close()

	var facts []models.ListingFact
	for rows.Next() {
		var (
			f                          models.ListingFact
			hostID, nbhdID, price, nrv sql.NullInt64
			nbhd, roomType             sql.NullString
			first, last, since         sql.NullString
			rating                     sql.NullFloat64
			superhost, cur, base       int64
		)
		if err := rows.Scan(&f.ListingID, &hostID, &f.CityID, &f.City, &nbhdID, &nbhd, &roomType, &price,
			&nrv, &first, &last, &rating, &since, &superhost, &cur, &base); err != nil {
			return nil, fmt.Errorf("failed to scan listing fact: %w", err)
		}
		f.HostID = optInt(hostID)
		f.NeighborhoodID = optInt(nbhdID)
		f.Neighborhood = optString(nbhd)
		f.RoomType = optString(roomType)
		f.Price = optInt(price)
		f.NumberOfReviews = optInt(nrv)
		f.FirstReview = optDate(first)
		f.LastReview = optDate(last)
		f.HostSince = optDate(since)
		if rating.Valid {
			v := rating.Float64
			f.ReviewScoresRating = &v
		}
		f.HostIsSuperhost = superhost == 1
		f.ActiveCurrent = cur == 1
		f.ActiveBaseline = base == 1
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// LoadAmenityListings returns amenity_id -> set of listing ids carrying it
func (s *Store) LoadAmenityListings(ctx context.Context) (map[int64]map[int64]struct{}, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT amenity_id, listing_id FROM ListingsAmenities`)
	if err != nil {
		return nil, fmt.Errorf("failed to query listing amenities: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]map[int64]struct{})
	for rows.Next() {
		var amenityID, listingID int64
		if err := rows.Scan(&amenityID, &listingID); err != nil {
			return nil, fmt.Errorf("failed to scan listing amenity: %w", err)
		}
		set, ok := out[amenityID]
		if !ok {
			set = make(map[int64]struct{})
			out[amenityID] = set
		}
		set[listingID] = struct{}{}
	}
	return out, rows.Err()
}

// ListRefs returns every row of a lookup table ordered by surrogate key
func (s *Store) ListRefs(ctx context.Context, lk Lookup) ([]models.NamedRef, error) {
	parent := "NULL"
	if lk.ParentColumn != "" {
		parent = lk.ParentColumn
	}
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s ORDER BY %s", lk.IDColumn, lk.NameColumn, parent, lk.Table, lk.IDColumn)
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", lk.Table, err)
	}
	defer rows.Close()

	var refs []models.NamedRef
	for rows.Next() {
		var (
			r        models.NamedRef
			parentID sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Name, &parentID); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", lk.Table, err)
		}
		r.ParentID = optInt(parentID)
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// TopImpacts returns the overall-scope impacts with the largest price difference
func (s *Store) TopImpacts(ctx context.Context, limit int) ([]models.ImpactSummary, error) {
	query := s.Dialect.rebind(`
SELECT a.amenity, i.median_price_difference, i.amenity_count
FROM AmenityPriceImpacts i
JOIN Amenities a ON a.amenity_id = i.amenity_id
WHERE i.city_id IS NULL AND i.neighborhood_id IS NULL
ORDER BY i.median_price_difference DESC, a.amenity
LIMIT ?`)
	rows, err := s.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query top impacts: %w", err)
	}
	defer rows.Close()

	var out []models.ImpactSummary
	for rows.Next() {
		var is models.ImpactSummary
		if err := rows.Scan(&is.Amenity, &is.MedianPriceDifference, &is.AmenityCount); err != nil {
			return nil, fmt.Errorf("failed to scan impact: %w", err)
		}
		out = append(out, is)
	}
	return out, rows.Err()
}

func optInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func optString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func optDate(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(models.DateLayout, v.String)
	if err != nil {
		return nil
	}
	return &t
}
