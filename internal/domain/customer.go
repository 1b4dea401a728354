package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// CustomerKeyRecord is one license key of a customer with its owning brand
// and entitlements, as read by the customer query.
type CustomerKeyRecord struct {
	Brand        Brand
	Key          LicenseKey
	Entitlements []Entitlement
}

type BrandRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Slug string    `json:"slug"`
}

type CustomerLicenseKey struct {
	ID           uuid.UUID            `json:"id"`
	Key          string               `json:"key"`
	BrandID      uuid.UUID            `json:"brand_id"`
	Active       bool                 `json:"active"`
	Status       KeyStatus            `json:"status"`
	CreatedAt    time.Time            `json:"created_at"`
	Entitlements []ProductEntitlement `json:"licenses"`
}

type ProductSeatSummary struct {
	ProductID         uuid.UUID `json:"product_id"`
	BrandID           uuid.UUID `json:"brand_id"`
	ProductName       string    `json:"product_name"`
	ProductSlug       string    `json:"product_slug"`
	Licenses          int       `json:"licenses"`
	TotalSeats        int       `json:"total_seats"`
	ActiveSeats       int       `json:"active_seats"`
	UnlimitedLicenses int       `json:"unlimited_licenses"`
}

type CustomerSummary struct {
	Email            string                `json:"email"`
	BrandsCount      int                   `json:"brands_count"`
	Brands           []BrandRef            `json:"brands"`
	TotalLicenseKeys int                   `json:"total_license_keys"`
	TotalLicenses    int                   `json:"total_licenses"`
	LicensesByStatus map[LicenseStatus]int `json:"licenses_by_status"`
	ExpiredLicenses  int                   `json:"expired_licenses"`
	Products         []ProductSeatSummary  `json:"products"`
	LicenseKeys      []CustomerLicenseKey  `json:"license_keys"`
}

func SummarizeCustomer(email string, records []CustomerKeyRecord, now time.Time) CustomerSummary {
	out := CustomerSummary{
		Email:            email,
		Brands:           []BrandRef{},
		LicensesByStatus: map[LicenseStatus]int{LicenseStatusValid: 0, LicenseStatusSuspended: 0, LicenseStatusCancelled: 0},
		Products:         []ProductSeatSummary{},
		LicenseKeys:      make([]CustomerLicenseKey, 0, len(records)),
	}
	seenBrands := map[uuid.UUID]bool{}
	products := map[uuid.UUID]*ProductSeatSummary{}
	for _, rec := range records {
		if !seenBrands[rec.Brand.ID] {
			seenBrands[rec.Brand.ID] = true
			out.Brands = append(out.Brands, BrandRef{ID: rec.Brand.ID, Name: rec.Brand.Name, Slug: rec.Brand.Slug})
		}
		keyStatus := SummarizeLicenseKey(rec.Key, rec.Entitlements, now)
		out.LicenseKeys = append(out.LicenseKeys, CustomerLicenseKey{
			ID:           rec.Key.ID,
			Key:          rec.Key.Key,
			BrandID:      rec.Brand.ID,
			Active:       rec.Key.Active,
			Status:       keyStatus.Status,
			CreatedAt:    rec.Key.CreatedAt,
			Entitlements: keyStatus.Entitlements,
		})
		out.TotalLicenses += len(rec.Entitlements)
		for _, e := range rec.Entitlements {
			out.LicensesByStatus[e.License.Status]++
			if e.License.Status == LicenseStatusValid && e.License.Expired(now) {
				out.ExpiredLicenses++
			}
			p, ok := products[e.Product.ID]
			if !ok {
				p = &ProductSeatSummary{
					ProductID:   e.Product.ID,
					BrandID:     e.Product.BrandID,
					ProductName: e.Product.Name,
					ProductSlug: e.Product.Slug,
				}
				products[e.Product.ID] = p
			}
			p.Licenses++
			p.ActiveSeats += e.ActiveSeats
			if e.License.MaxSeats != nil {
				p.TotalSeats += *e.License.MaxSeats
			} else {
				p.UnlimitedLicenses++
			}
		}
	}
	out.TotalLicenseKeys = len(out.LicenseKeys)
	out.BrandsCount = len(out.Brands)
	for _, p := range products {
		out.Products = append(out.Products, *p)
	}
	sort.Slice(out.Brands, func(i, j int) bool { return out.Brands[i].Slug < out.Brands[j].Slug })
	sort.Slice(out.Products, func(i, j int) bool {
		if out.Products[i].BrandID != out.Products[j].BrandID {
			return out.Products[i].BrandID.String() < out.Products[j].BrandID.String()
		}
		return out.Products[i].ProductSlug < out.Products[j].ProductSlug
	})
	sort.Slice(out.LicenseKeys, func(i, j int) bool { return out.LicenseKeys[i].CreatedAt.Before(out.LicenseKeys[j].CreatedAt) })
	return out
}
