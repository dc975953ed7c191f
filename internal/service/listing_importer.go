package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/grachmannico95/residue-market-be/internal/domain"
	"github.com/grachmannico95/residue-market-be/pkg/logger"
	"github.com/shopspring/decimal"
)

const importColumns = 5

type ImportError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// ImportReport lists what a CSV import created and which lines were skipped.
type ImportReport struct {
	Imported int           `json:"imported"`
	Skipped  int           `json:"skipped"`
	Listings []string      `json:"listing_ids"`
	Errors   []ImportError `json:"errors"`
}

func (r *ImportReport) skip(line int, err error) {
	r.Skipped++
	r.Errors = append(r.Errors, ImportError{Line: line, Error: err.Error()})
}

// ImportListings creates one approved listing per CSV row
// (farmer_id,crop_type,disposal_method,quantity,price_per_unit) under the
// caller's panchayat. A header row is optional. Bad rows are skipped and
// reported by line; good rows are kept.
func (s *listingService) ImportListings(ctx context.Context, official domain.Identity, reader io.Reader) (*ImportReport, error) {
	if err := requireRole(official, domain.RolePanchayat); err != nil {
		return nil, err
	}

	if official.PanchayatID == "" {
		return nil, fmt.Errorf("%w: identity carries no panchayat", domain.ErrForbidden)
	}

	ctx = logger.WithUserID(ctx, official.UserID)

	s.logger.Info(ctx, "Starting listing import",
		"panchayat_id", official.PanchayatID,
	)

	csvReader := csv.NewReader(reader)
	csvReader.ReuseRecord = true
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	report := &ImportReport{
		Listings: []string{},
		Errors:   []ImportError{},
	}
	first := true

	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}

		if err != nil {
			line := 0
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				line = parseErr.StartLine
			}
			s.logger.Warn(ctx, "Failed to read CSV line",
				"line", line,
				"error", err,
			)
			report.skip(line, err)
			continue
		}

		line, _ := csvReader.FieldPos(0)

		if first {
			first = false
			if isImportHeader(record) {
				continue
			}
		}

		listing, err := s.parseListingRecord(record, official.PanchayatID)
		if err != nil {
			s.logger.Warn(ctx, "Skipping listing row",
				"line", line,
				"error", err,
			)
			report.skip(line, err)
			continue
		}

		if err := s.repo.CreateListing(ctx, &listing); err != nil {
			s.logger.Error(ctx, "Failed to store imported listing",
				"line", line,
				"error", err,
			)
			report.skip(line, fmt.Errorf("%w: %w", domain.ErrPersistence, err))
			continue
		}

		report.Imported++
		report.Listings = append(report.Listings, listing.ID)
	}

	s.logger.Info(ctx, "Listing import completed",
		"imported", report.Imported,
		"skipped", report.Skipped,
	)

	return report, nil
}

func isImportHeader(record []string) bool {
	return len(record) > 0 && strings.EqualFold(strings.TrimSpace(record[0]), "farmer_id")
}

func (s *listingService) parseListingRecord(record []string, panchayatID string) (domain.ResidueListing, error) {
	if len(record) != importColumns {
		return domain.ResidueListing{}, fmt.Errorf("%w: expected %d fields, got %d", domain.ErrValidation, importColumns, len(record))
	}

	farmerID := strings.TrimSpace(record[0])
	if farmerID == "" {
		return domain.ResidueListing{}, fmt.Errorf("%w: farmer_id is required", domain.ErrValidation)
	}

	crop := domain.CropType(strings.ToLower(strings.TrimSpace(record[1])))
	method := domain.DisposalMethod(strings.ToLower(strings.TrimSpace(record[2])))

	qty, err := decimal.NewFromString(strings.TrimSpace(record[3]))
	if err != nil {
		return domain.ResidueListing{}, fmt.Errorf("%w: invalid quantity: %w", domain.ErrValidation, err)
	}

	var price decimal.NullDecimal
	if raw := strings.TrimSpace(record[4]); raw != "" {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return domain.ResidueListing{}, fmt.Errorf("%w: invalid price_per_unit: %w", domain.ErrValidation, err)
		}
		price = decimal.NewNullDecimal(p)
	}

	if err := validateListing(crop, method, qty, price, s.quantityScale); err != nil {
		return domain.ResidueListing{}, err
	}

	// Rows come from the panchayat itself, so they skip the pending step.
	return s.newListing(farmerID, panchayatID, crop, method, qty, price, domain.VerificationApproved), nil
}
