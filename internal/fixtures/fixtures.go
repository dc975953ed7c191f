package fixtures

import (
	"context"
	"fmt"
	"os"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/internal/service"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

type Listing struct {
	FarmerID       string `yaml:"farmer_id"`
	CropType       string `yaml:"crop_type"`
	DisposalMethod string `yaml:"disposal_method"`
	Quantity       string `yaml:"quantity"`
	PricePerUnit   string `yaml:"price_per_unit"`
	// Verification is approved, rejected or pending. Empty means approved.
	Verification string `yaml:"verification"`
}

type Panchayat struct {
	ID       string    `yaml:"id"`
	Official string    `yaml:"official"`
	Listings []Listing `yaml:"listings"`
}

type File struct {
	Panchayats []Panchayat `yaml:"panchayats"`
}

func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.UnmarshalStrict(data, &file); err != nil {
		return nil, fmt.Errorf("unable to parse fixtures: %w", err)
	}

	for i, p := range file.Panchayats {
		if p.ID == "" {
			return nil, fmt.Errorf("panchayat at index %d missing id", i)
		}
		if p.Official == "" {
			return nil, fmt.Errorf("panchayat %s missing official", p.ID)
		}
		for j, l := range p.Listings {
			if l.FarmerID == "" {
				return nil, fmt.Errorf("panchayat %s listing at index %d missing farmer_id", p.ID, j)
			}
			switch domain.VerificationStatus(l.Verification) {
			case "", domain.VerificationApproved, domain.VerificationRejected, domain.VerificationPending:
			default:
				return nil, fmt.Errorf("panchayat %s listing at index %d has unknown verification %q", p.ID, j, l.Verification)
			}
		}
	}

	return &file, nil
}

// Apply creates every listing through the listing service, as its farmer, and
// then records the official's decision. It returns the created listing ids.
func Apply(ctx context.Context, svc service.ListingService, file *File) ([]string, error) {
	var ids []string

	for _, p := range file.Panchayats {
		official := domain.Identity{UserID: p.Official, Role: domain.RolePanchayat, PanchayatID: p.ID}

		for _, l := range p.Listings {
			req, err := l.request()
			if err != nil {
				return ids, fmt.Errorf("farmer %s: %w", l.FarmerID, err)
			}

			farmer := domain.Identity{UserID: l.FarmerID, Role: domain.RoleFarmer, PanchayatID: p.ID}
			listing, err := svc.CreateListing(ctx, farmer, req)
			if err != nil {
				return ids, fmt.Errorf("farmer %s: %w", l.FarmerID, err)
			}
			ids = append(ids, listing.ID)

			decision := domain.VerificationStatus(l.Verification)
			if decision == "" {
				decision = domain.VerificationApproved
			}
			if decision == domain.VerificationPending {
				continue
			}
			if _, err := svc.VerifyListing(ctx, official, listing.ID, decision); err != nil {
				return ids, fmt.Errorf("verify %s: %w", listing.ID, err)
			}
		}
	}

	return ids, nil
}

func (l Listing) request() (service.CreateListingRequest, error) {
	qty, err := decimal.NewFromString(l.Quantity)
	if err != nil {
		return service.CreateListingRequest{}, fmt.Errorf("%w: invalid quantity %q", domain.ErrValidation, l.Quantity)
	}

	var price decimal.NullDecimal
	if l.PricePerUnit != "" {
		p, err := decimal.NewFromString(l.PricePerUnit)
		if err != nil {
			return service.CreateListingRequest{}, fmt.Errorf("%w: invalid price_per_unit %q", domain.ErrValidation, l.PricePerUnit)
		}
		price = decimal.NewNullDecimal(p)
	}

	return service.CreateListingRequest{
		CropType:       domain.CropType(l.CropType),
		DisposalMethod: domain.DisposalMethod(l.DisposalMethod),
		Quantity:       qty,
		PricePerUnit:   price,
	}, nil
}
