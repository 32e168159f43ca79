package catalog

import (
	"context"
	"strconv"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/shared"
)

type memoryRepo struct {
	nextID     int64
	parts      map[int64]Part
	parties    map[PartyKind]map[int64]Party
	referenced map[string]bool
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		parts:      map[int64]Part{},
		parties:    map[PartyKind]map[int64]Party{KindCustomer: {}, KindSupplier: {}},
		referenced: map[string]bool{},
	}
}

func (m *memoryRepo) CreatePart(_ context.Context, p Part) (Part, error) {
	for _, existing := range m.parts {
		if existing.PartNumber == p.PartNumber {
			return Part{}, shared.NewConflictError("part", p.PartNumber, "duplicate part number")
		}
	}
	m.nextID++
	p.ID = m.nextID
	m.parts[p.ID] = p
	return p, nil
}

func (m *memoryRepo) GetPart(_ context.Context, id int64) (Part, error) {
	p, ok := m.parts[id]
	if !ok {
		return Part{}, shared.NewNotFoundError("part", id)
	}
	return p, nil
}

func (m *memoryRepo) ListParts(context.Context, ListFilter) ([]Part, error) {
	var out []Part
	for _, p := range m.parts {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) DeletePart(_ context.Context, id int64) error {
	delete(m.parts, id)
	return nil
}

func (m *memoryRepo) PartReferenced(_ context.Context, id int64) (bool, error) {
	return m.referenced[refKey("part", id)], nil
}

func (m *memoryRepo) CreateParty(_ context.Context, p Party) (Party, error) {
	m.nextID++
	p.ID = m.nextID
	m.parties[p.Kind][p.ID] = p
	return p, nil
}

func (m *memoryRepo) GetParty(_ context.Context, kind PartyKind, id int64) (Party, error) {
	p, ok := m.parties[kind][id]
	if !ok {
		return Party{}, shared.NewNotFoundError(string(kind), id)
	}
	return p, nil
}

func (m *memoryRepo) ListParties(_ context.Context, kind PartyKind, _ ListFilter) ([]Party, error) {
	var out []Party
	for _, p := range m.parties[kind] {
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryRepo) DeleteParty(_ context.Context, kind PartyKind, id int64) error {
	delete(m.parties[kind], id)
	return nil
}

func (m *memoryRepo) PartyReferenced(_ context.Context, kind PartyKind, id int64) (bool, error) {
	return m.referenced[refKey(string(kind), id)], nil
}

func refKey(entity string, id int64) string {
	return entity + ":" + strconv.FormatInt(id, 10)
}

func validPart() Part {
	return Part{
		PartNumber: " HF-100 ",
		Name:       "Hydraulic Filter",
		HSNCode:    "8421",
		GSTPercent: decimal.NewFromInt(18),
		Unit:       UnitPieces,
		MRP:        decimal.NewFromInt(2600),
		RTL:        decimal.NewFromInt(2200),
	}
}

func TestCreatePartTrimsAndValidates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	part, err := svc.CreatePart(context.Background(), validPart())
	require.NoError(t, err)
	require.Equal(t, "HF-100", part.PartNumber)
	require.Nil(t, part.Barcode)

	bad := validPart()
	bad.Unit = "DOZEN"
	_, err = svc.CreatePart(context.Background(), bad)
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
	require.Equal(t, "unit", ve.Field)

	bad = validPart()
	bad.MRP = decimal.NewFromInt(-1)
	_, err = svc.CreatePart(context.Background(), bad)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreatePart(context.Background(), validPart())
	require.ErrorIs(t, err, shared.ErrConflict)
}

func TestDeletePartGuardsReferences(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	part, err := svc.CreatePart(ctx, validPart())
	require.NoError(t, err)

	repo.referenced[refKey("part", part.ID)] = true
	err = svc.DeletePart(ctx, part.ID)
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = svc.GetPart(ctx, part.ID)
	require.NoError(t, err)

	repo.referenced[refKey("part", part.ID)] = false
	require.NoError(t, svc.DeletePart(ctx, part.ID))
	_, err = svc.GetPart(ctx, part.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	require.ErrorIs(t, svc.DeletePart(ctx, 999), shared.ErrNotFound)
}

func TestCreatePartyValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	party, err := svc.CreateParty(ctx, Party{Kind: KindCustomer, Name: "Sharma Motors", Phone: "9800000001", GSTIN: "27aapfu0939f1zv"})
	require.NoError(t, err)
	require.Equal(t, "27AAPFU0939F1ZV", party.GSTIN)

	_, err = svc.CreateParty(ctx, Party{Kind: KindSupplier, Name: "Acme", Phone: ""})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateParty(ctx, Party{Kind: KindSupplier, Name: "Acme", Phone: "1", GSTIN: "SHORT"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateParty(ctx, Party{Kind: "vendor", Name: "Acme", Phone: "1"})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestDeletePartyGuardsInvoices(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil)
	ctx := context.Background()
	supplier, err := svc.CreateParty(ctx, Party{Kind: KindSupplier, Name: "Acme Hydraulics", Phone: "9800000002"})
	require.NoError(t, err)

	repo.referenced[refKey(string(KindSupplier), supplier.ID)] = true
	require.ErrorIs(t, svc.DeleteParty(ctx, KindSupplier, supplier.ID), shared.ErrConflict)

	_, err = svc.GetCustomer(ctx, supplier.ID)
	require.ErrorIs(t, err, shared.ErrNotFound, "a supplier id is not a customer")

	repo.referenced[refKey(string(KindSupplier), supplier.ID)] = false
	require.NoError(t, svc.DeleteParty(ctx, KindSupplier, supplier.ID))
}
