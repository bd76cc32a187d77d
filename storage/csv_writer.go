package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"rental-insights/models"
	"rental-insights/utils"
)

// CSVWriter writes the cleaned, anonymized listing table to a CSV snapshot
type CSVWriter struct {
	filePath string
	logger   *utils.Logger
}

// NewCSVWriter creates a new CSVWriter
func NewCSVWriter(filePath string, logger *utils.Logger) *CSVWriter {
	return &CSVWriter{filePath: filePath, logger: logger}
}

var snapshotHeader = []string{
	"listing_id", "host_id", "city", "neighborhood", "property_type", "room_type",
	"accommodates", "bedrooms", "beds", "price", "minimum_nights", "maximum_nights",
	"has_availability", "instant_bookable", "license",
	"availability_30", "availability_60", "availability_90", "availability_365",
	"number_of_reviews", "number_of_reviews_last_12m", "number_of_reviews_last_30d",
	"first_review", "last_review", "review_scores_rating", "review_scores_accuracy",
	"review_scores_cleanliness", "review_scores_checkin", "review_scores_communication",
	"review_scores_location", "review_scores_value", "amenities",
	"host_since", "host_response_time", "host_response_rate", "host_acceptance_rate",
	"host_is_superhost", "host_listings_count", "host_total_listings_count",
	"host_has_profile_pic", "host_identity_verified",
}

// WriteClean writes one row per cleaned listing, joined with its host.
// The file is written to a temp path and renamed into place.
func (w *CSVWriter) WriteClean(ds *models.CleanDataset) error {
	dir := filepath.Dir(w.filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.CreateTemp(dir, filepath.Base(w.filePath)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	tmp := file.Name()
	defer os.Remove(tmp)

	hosts := make(map[int64]*models.Host, len(ds.Hosts))
	for _, h := range ds.Hosts {
		hosts[h.HostID] = h
	}

	writer := csv.NewWriter(file)
	if err := writer.Write(snapshotHeader); err != nil {
		file.Close()
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, l := range ds.Listings {
		if err := writer.Write(snapshotRow(l, hosts[l.HostID])); err != nil {
			w.logger.Error("Failed to write CSV row for listing %d: %v", l.ListingID, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush CSV: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close CSV: %w", err)
	}
	if err := os.Rename(tmp, w.filePath); err != nil {
		return fmt.Errorf("failed to publish CSV: %w", err)
	}

	w.logger.Info("Clean listings written to: %s (%d rows)", w.filePath, len(ds.Listings))
	return nil
}

func snapshotRow(l *models.Listing, h *models.Host) []string {
	amenities, _ := json.Marshal(l.Amenities)
	row := []string{
		strconv.FormatInt(l.ListingID, 10),
		strconv.FormatInt(l.HostID, 10),
		l.City,
		str(l.Neighborhood), str(l.PropertyType), str(l.RoomType),
		num(l.Accommodates), num(l.Bedrooms), num(l.Beds), num(l.Price),
		num(l.MinimumNights), num(l.MaximumNights),
		num(l.HasAvailability), num(l.InstantBookable), str(l.License),
		num(l.Availability30), num(l.Availability60), num(l.Availability90), num(l.Availability365),
		num(l.NumberOfReviews), num(l.NumberOfReviewsLast12m), num(l.NumberOfReviewsLast30d),
		str(models.FormatDate(l.FirstReview)), str(models.FormatDate(l.LastReview)),
		flt(l.ReviewScoresRating), flt(l.ReviewScoresAccuracy), flt(l.ReviewScoresCleanliness),
		flt(l.ReviewScoresCheckin), flt(l.ReviewScoresCommunication),
		flt(l.ReviewScoresLocation), flt(l.ReviewScoresValue),
		string(amenities),
	}
	if h == nil {
		return append(row, make([]string, 9)...)
	}
	return append(row,
		str(models.FormatDate(h.HostSince)), str(h.HostResponseTime),
		flt(h.HostResponseRate), flt(h.HostAcceptanceRate),
		num(h.HostIsSuperhost), num(h.HostListingsCount), num(h.HostTotalListingsCount),
		num(h.HostHasProfilePic), num(h.HostIdentityVerified),
	)
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *int64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatInt(*p, 10)
}

func flt(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}
