package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/partsdesk/partsdesk/internal/shared"
)

var gstinPattern = regexp.MustCompile(`^[0-9A-Z]{15}$`)

// Repository abstracts catalog persistence.
type Repository interface {
	CreatePart(ctx context.Context, part Part) (Part, error)
	GetPart(ctx context.Context, id int64) (Part, error)
	ListParts(ctx context.Context, filter ListFilter) ([]Part, error)
	DeletePart(ctx context.Context, id int64) error
	PartReferenced(ctx context.Context, id int64) (bool, error)

	CreateParty(ctx context.Context, party Party) (Party, error)
	GetParty(ctx context.Context, kind PartyKind, id int64) (Party, error)
	ListParties(ctx context.Context, kind PartyKind, filter ListFilter) ([]Party, error)
	DeleteParty(ctx context.Context, kind PartyKind, id int64) error
	PartyReferenced(ctx context.Context, kind PartyKind, id int64) (bool, error)
}

// Service manages parts, customers and suppliers.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

// NewService builds Service.
func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ============================================================================
// PART OPERATIONS
// ============================================================================

// CreatePart validates and stores a new part.
func (s *Service) CreatePart(ctx context.Context, part Part) (Part, error) {
	part.PartNumber = strings.TrimSpace(part.PartNumber)
	part.Name = strings.TrimSpace(part.Name)
	if part.Barcode != nil {
		code := strings.TrimSpace(*part.Barcode)
		if code == "" {
			part.Barcode = nil
		} else {
			part.Barcode = &code
		}
	}
	if err := validatePart(part); err != nil {
		return Part{}, err
	}
	created, err := s.repo.CreatePart(ctx, part)
	if err != nil {
		return Part{}, shared.AsPersistence("create part", err)
	}
	s.logger.Info("part created", slog.Int64("part_id", created.ID), slog.String("part_number", created.PartNumber))
	return created, nil
}

// GetPart loads a part by id.
func (s *Service) GetPart(ctx context.Context, id int64) (Part, error) {
	if id <= 0 {
		return Part{}, shared.NewValidationError("partId", "must be a positive integer")
	}
	part, err := s.repo.GetPart(ctx, id)
	if err != nil {
		return Part{}, shared.AsPersistence("get part", err)
	}
	return part, nil
}

// ListParts lists parts ordered by part number.
func (s *Service) ListParts(ctx context.Context, filter ListFilter) ([]Part, error) {
	filter = normaliseFilter(filter)
	parts, err := s.repo.ListParts(ctx, filter)
	if err != nil {
		return nil, shared.AsPersistence("list parts", err)
	}
	return parts, nil
}

// DeletePart removes a part no invoice line refers to.
func (s *Service) DeletePart(ctx context.Context, id int64) error {
	if _, err := s.GetPart(ctx, id); err != nil {
		return err
	}
	referenced, err := s.repo.PartReferenced(ctx, id)
	if err != nil {
		return shared.AsPersistence("part references", err)
	}
	if referenced {
		return shared.NewConflictError("part", id, "referenced by invoice lines or stock movements")
	}
	if err := s.repo.DeletePart(ctx, id); err != nil {
		return shared.AsPersistence("delete part", err)
	}
	s.logger.Info("part deleted", slog.Int64("part_id", id))
	return nil
}

// ============================================================================
// PARTY OPERATIONS
// ============================================================================

// CreateParty validates and stores a customer or supplier.
func (s *Service) CreateParty(ctx context.Context, party Party) (Party, error) {
	party.Name = strings.TrimSpace(party.Name)
	party.Phone = strings.TrimSpace(party.Phone)
	party.Email = strings.TrimSpace(party.Email)
	party.GSTIN = strings.ToUpper(strings.TrimSpace(party.GSTIN))
	if err := validateParty(party); err != nil {
		return Party{}, err
	}
	created, err := s.repo.CreateParty(ctx, party)
	if err != nil {
		return Party{}, shared.AsPersistence("create "+string(party.Kind), err)
	}
	s.logger.Info("party created", slog.String("kind", string(created.Kind)), slog.Int64("party_id", created.ID))
	return created, nil
}

// GetParty loads a customer or supplier by id.
func (s *Service) GetParty(ctx context.Context, kind PartyKind, id int64) (Party, error) {
	if err := checkKind(kind); err != nil {
		return Party{}, err
	}
	if id <= 0 {
		return Party{}, shared.NewValidationError(string(kind)+"Id", "must be a positive integer")
	}
	party, err := s.repo.GetParty(ctx, kind, id)
	if err != nil {
		return Party{}, shared.AsPersistence("get "+string(kind), err)
	}
	return party, nil
}

// GetCustomer loads a customer by id.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Party, error) {
	return s.GetParty(ctx, KindCustomer, id)
}

// GetSupplier loads a supplier by id.
func (s *Service) GetSupplier(ctx context.Context, id int64) (Party, error) {
	return s.GetParty(ctx, KindSupplier, id)
}

// ListParties lists customers or suppliers ordered by name.
func (s *Service) ListParties(ctx context.Context, kind PartyKind, filter ListFilter) ([]Party, error) {
	if err := checkKind(kind); err != nil {
		return nil, err
	}
	parties, err := s.repo.ListParties(ctx, kind, normaliseFilter(filter))
	if err != nil {
		return nil, shared.AsPersistence("list "+string(kind), err)
	}
	return parties, nil
}

// DeleteParty removes a customer or supplier no invoice refers to.
func (s *Service) DeleteParty(ctx context.Context, kind PartyKind, id int64) error {
	if _, err := s.GetParty(ctx, kind, id); err != nil {
		return err
	}
	referenced, err := s.repo.PartyReferenced(ctx, kind, id)
	if err != nil {
		return shared.AsPersistence(string(kind)+" references", err)
	}
	if referenced {
		return shared.NewConflictError(string(kind), id, "referenced by invoices")
	}
	if err := s.repo.DeleteParty(ctx, kind, id); err != nil {
		return shared.AsPersistence("delete "+string(kind), err)
	}
	s.logger.Info("party deleted", slog.String("kind", string(kind)), slog.Int64("party_id", id))
	return nil
}

func validatePart(p Part) error {
	switch {
	case p.PartNumber == "":
		return shared.NewValidationError("partNumber", "is required")
	case p.Name == "":
		return shared.NewValidationError("name", "is required")
	case !p.Unit.Valid():
		return shared.NewValidationError("unit", "must be one of PCS SET LTR KG MTR BOX")
	case p.GSTPercent.IsNegative() || p.GSTPercent.GreaterThan(decimal.NewFromInt(100)):
		return shared.NewValidationError("gstPercent", "must be between 0 and 100")
	case p.MRP.IsNegative():
		return shared.NewValidationError("mrp", "must not be negative")
	case p.RTL.IsNegative():
		return shared.NewValidationError("rtl", "must not be negative")
	}
	return nil
}

func validateParty(p Party) error {
	if err := checkKind(p.Kind); err != nil {
		return err
	}
	switch {
	case p.Name == "":
		return shared.NewValidationError("name", "is required")
	case p.Phone == "":
		return shared.NewValidationError("phone", "is required")
	case p.GSTIN != "" && !gstinPattern.MatchString(p.GSTIN):
		return shared.NewValidationError("gstin", "must be 15 alphanumeric characters")
	}
	return nil
}

func checkKind(kind PartyKind) error {
	if kind != KindCustomer && kind != KindSupplier {
		return shared.NewValidationError("kind", fmt.Sprintf("unknown party kind %q", kind))
	}
	return nil
}

func normaliseFilter(f ListFilter) ListFilter {
	page := shared.NewPage(f.Limit, f.Offset)
	f.Limit, f.Offset = page.Limit, page.Offset
	f.Search = strings.TrimSpace(f.Search)
	return f
}
