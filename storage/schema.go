package storage

import (
	"context"
	"fmt"
	"strings"
)

// TableKind classifies tables by their structural role
type TableKind string

const (
	KindLookup             TableKind = "lookup"
	KindHierarchicalLookup TableKind = "hierarchical_lookup"
	KindEntity             TableKind = "entity"
	KindExtension          TableKind = "extension"
	KindJunction           TableKind = "junction"
	KindDerived            TableKind = "derived"
)

// Table describes one table of the normalized schema
type Table struct {
	Name        string
	Kind        TableKind
	Description string
	ddl         string
}

// Lookup describes a get-or-create table keyed by a natural name,
// optionally scoped under a parent row.
type Lookup struct {
	Table        string
	IDColumn     string
	NameColumn   string
	ParentColumn string
}

var (
	HostResponseTimes = Lookup{Table: "HostResponseTimes", IDColumn: "host_response_time_id", NameColumn: "host_response_time"}
	PropertyTypes     = Lookup{Table: "PropertyTypes", IDColumn: "property_type_id", NameColumn: "property_type"}
	RoomTypes         = Lookup{Table: "RoomTypes", IDColumn: "room_type_id", NameColumn: "room_type"}
	Cities            = Lookup{Table: "Cities", IDColumn: "city_id", NameColumn: "city"}
	Neighborhoods     = Lookup{Table: "Neighborhoods", IDColumn: "neighborhood_id", NameColumn: "neighborhood", ParentColumn: "city_id"}
	AmenityCategories = Lookup{Table: "AmenityCategories", IDColumn: "amenity_category_id", NameColumn: "amenity_category"}
	Amenities         = Lookup{Table: "Amenities", IDColumn: "amenity_id", NameColumn: "amenity", ParentColumn: "amenity_category_id"}
)

// FlatLookups are the simple lookup tables fed straight from a source column
var FlatLookups = map[string]Lookup{
	HostResponseTimes.Table: HostResponseTimes,
	PropertyTypes.Table:     PropertyTypes,
	RoomTypes.Table:         RoomTypes,
}

// Schema lists every table in foreign-key dependency order.
// {{pk}} and {{real}} are replaced per dialect.
var Schema = []Table{
	{Name: "HostResponseTimes", Kind: KindLookup, Description: "Simple lookup table for host response times", ddl: `
CREATE TABLE IF NOT EXISTS HostResponseTimes (
	host_response_time_id {{pk}},
	host_response_time    TEXT NOT NULL UNIQUE
)`},
	{Name: "PropertyTypes", Kind: KindLookup, Description: "Simple lookup table for listing property types", ddl: `
CREATE TABLE IF NOT EXISTS PropertyTypes (
	property_type_id {{pk}},
	property_type    TEXT NOT NULL UNIQUE
)`},
	{Name: "RoomTypes", Kind: KindLookup, Description: "Simple lookup table for listing room types", ddl: `
CREATE TABLE IF NOT EXISTS RoomTypes (
	room_type_id {{pk}},
	room_type    TEXT NOT NULL UNIQUE
)`},
	{Name: "Cities", Kind: KindHierarchicalLookup, Description: "Hierarchical lookup table for listing cities; parent to Neighborhoods", ddl: `
CREATE TABLE IF NOT EXISTS Cities (
	city_id {{pk}},
	city    TEXT NOT NULL UNIQUE
)`},
	{Name: "Neighborhoods", Kind: KindHierarchicalLookup, Description: "Hierarchical lookup table for listing neighborhoods; child to Cities", ddl: `
CREATE TABLE IF NOT EXISTS Neighborhoods (
	neighborhood_id {{pk}},
	neighborhood    TEXT NOT NULL,
	city_id         INTEGER NOT NULL REFERENCES Cities(city_id),
	UNIQUE (city_id, neighborhood)
)`},
	{Name: "AmenityCategories", Kind: KindHierarchicalLookup, Description: "Hierarchical lookup table for amenity categories; parent to Amenities", ddl: `
CREATE TABLE IF NOT EXISTS AmenityCategories (
	amenity_category_id {{pk}},
	amenity_category    TEXT NOT NULL UNIQUE
)`},
	{Name: "Amenities", Kind: KindHierarchicalLookup, Description: "Hierarchical lookup table for canonical amenities; child to AmenityCategories", ddl: `
CREATE TABLE IF NOT EXISTS Amenities (
	amenity_id          {{pk}},
	amenity             TEXT NOT NULL UNIQUE,
	amenity_category_id INTEGER NOT NULL REFERENCES AmenityCategories(amenity_category_id)
)`},
	{Name: "Hosts", Kind: KindEntity, Description: "Entity table for unique hosts", ddl: `
CREATE TABLE IF NOT EXISTS Hosts (
	host_id                   INTEGER PRIMARY KEY,
	host_since                TEXT,
	host_response_time_id     INTEGER REFERENCES HostResponseTimes(host_response_time_id),
	host_response_rate        {{real}},
	host_acceptance_rate      {{real}},
	host_is_superhost         INTEGER,
	host_listings_count       INTEGER,
	host_total_listings_count INTEGER,
	host_has_profile_pic      INTEGER,
	host_identity_verified    INTEGER
)`},
	{Name: "ListingsCore", Kind: KindEntity, Description: "Entity table for unique listings", ddl: `
CREATE TABLE IF NOT EXISTS ListingsCore (
	listing_id                     INTEGER PRIMARY KEY,
	host_id                        INTEGER REFERENCES Hosts(host_id),
	property_type_id               INTEGER REFERENCES PropertyTypes(property_type_id),
	room_type_id                   INTEGER REFERENCES RoomTypes(room_type_id),
	accommodates                   INTEGER,
	bedrooms                       INTEGER,
	beds                           INTEGER,
	price                          INTEGER,
	minimum_nights                 INTEGER,
	maximum_nights                 INTEGER,
	has_availability               INTEGER,
	instant_bookable               INTEGER,
	license                        TEXT,
	was_active_most_recent_quarter INTEGER NOT NULL DEFAULT 0,
	was_active_four_quarters_prior INTEGER NOT NULL DEFAULT 0
)`},
	{Name: "ListingsLocation", Kind: KindExtension, Description: "Extension table for listing location", ddl: `
CREATE TABLE IF NOT EXISTS ListingsLocation (
	listing_id      INTEGER PRIMARY KEY REFERENCES ListingsCore(listing_id),
	city_id         INTEGER NOT NULL REFERENCES Cities(city_id),
	neighborhood_id INTEGER REFERENCES Neighborhoods(neighborhood_id)
)`},
	{Name: "ListingsReviewsSummary", Kind: KindExtension, Description: "Extension table for listing reviews summary", ddl: `
CREATE TABLE IF NOT EXISTS ListingsReviewsSummary (
	listing_id                  INTEGER PRIMARY KEY REFERENCES ListingsCore(listing_id),
	number_of_reviews           INTEGER,
	number_of_reviews_last_12m  INTEGER,
	number_of_reviews_last_30d  INTEGER,
	first_review                TEXT,
	last_review                 TEXT,
	review_scores_rating        {{real}},
	review_scores_accuracy      {{real}},
	review_scores_cleanliness   {{real}},
	review_scores_checkin       {{real}},
	review_scores_communication {{real}},
	review_scores_location      {{real}},
	review_scores_value         {{real}}
)`},
	{Name: "ListingsAvailability", Kind: KindExtension, Description: "Extension table for listing availability", ddl: `
CREATE TABLE IF NOT EXISTS ListingsAvailability (
	listing_id       INTEGER PRIMARY KEY REFERENCES ListingsCore(listing_id),
	availability_30  INTEGER,
	availability_60  INTEGER,
	availability_90  INTEGER,
	availability_365 INTEGER
)`},
	{Name: "ListingsAmenities", Kind: KindJunction, Description: "Junction table for listing amenities", ddl: `
CREATE TABLE IF NOT EXISTS ListingsAmenities (
	listing_amenity_id {{pk}},
	listing_id         INTEGER NOT NULL REFERENCES ListingsCore(listing_id),
	amenity_id         INTEGER NOT NULL REFERENCES Amenities(amenity_id),
	UNIQUE (listing_id, amenity_id)
)`},
	{Name: "AmenityPriceImpacts", Kind: KindDerived, Description: "Median price difference per amenity and scope", ddl: `
CREATE TABLE IF NOT EXISTS AmenityPriceImpacts (
	amenity_price_impact_id {{pk}},
	amenity_id              INTEGER NOT NULL REFERENCES Amenities(amenity_id),
	city_id                 INTEGER REFERENCES Cities(city_id),
	neighborhood_id         INTEGER REFERENCES Neighborhoods(neighborhood_id),
	median_price_difference INTEGER NOT NULL,
	amenity_count           INTEGER NOT NULL
)`},
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_location_city ON ListingsLocation (city_id)`,
	`CREATE INDEX IF NOT EXISTS idx_location_neighborhood ON ListingsLocation (neighborhood_id)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_first ON ListingsReviewsSummary (first_review)`,
	`CREATE INDEX IF NOT EXISTS idx_reviews_last ON ListingsReviewsSummary (last_review)`,
	`CREATE INDEX IF NOT EXISTS idx_listing_amenities_amenity ON ListingsAmenities (amenity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_impacts_amenity ON AmenityPriceImpacts (amenity_id)`,
	`CREATE INDEX IF NOT EXISTS idx_impacts_scope ON AmenityPriceImpacts (city_id, neighborhood_id)`,
}

func (d Dialect) ddl(t Table) string {
	pk, realType := "INTEGER PRIMARY KEY AUTOINCREMENT", "REAL"
	if d == Postgres {
		pk, realType = "BIGSERIAL PRIMARY KEY", "DOUBLE PRECISION"
	}
	return strings.NewReplacer("{{pk}}", pk, "{{real}}", realType).Replace(t.ddl)
}

// TableByName returns the schema entry for name
func TableByName(name string) (Table, bool) {
	for _, t := range Schema {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// CreateSchema creates every table and index
func (s *Store) CreateSchema(ctx context.Context) error {
	for _, t := range Schema {
		if _, err := s.DB.ExecContext(ctx, s.Dialect.ddl(t)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.Name, err)
		}
	}
	for _, idx := range indexes {
		if _, err := s.DB.ExecContext(ctx, idx); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	s.logger.Info("Schema ready (%d tables)", len(Schema))
	return nil
}

// DropSchema drops every table in reverse dependency order
func (s *Store) DropSchema(ctx context.Context) error {
	suffix := ""
	if s.Dialect == Postgres {
		suffix = " CASCADE"
	}
	for i := len(Schema) - 1; i >= 0; i-- {
		if _, err := s.DB.ExecContext(ctx, "DROP TABLE IF EXISTS "+Schema[i].Name+suffix); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", Schema[i].Name, err)
		}
	}
	return nil
}

// Reset drops and recreates the schema; a full reload replaces everything
func (s *Store) Reset(ctx context.Context) error {
	if err := s.DropSchema(ctx); err != nil {
		return err
	}
	return s.CreateSchema(ctx)
}
