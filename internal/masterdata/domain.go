// Package masterdata exposes read-only reference catalogs. The catalogs are
// owned and maintained by an external system; this service only resolves and
// lists them for order validation and client dropdowns.
package masterdata

import "time"

// ListFilters represents standard list filters.
type ListFilters struct {
	Search   string
	IsActive *bool
	Page     int
	Limit    int
}

// Supplier represents a supplier reference entry.
type Supplier struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Name        string    `json:"name"`
	CountryCode string    `json:"countryCode"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Warehouse represents a destination warehouse reference entry.
type Warehouse struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Region    string    `json:"region"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SKU represents a stock keeping unit reference entry.
type SKU struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
