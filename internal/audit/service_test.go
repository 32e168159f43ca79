package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/shared"
)

type stubRepo struct {
	rows []TimelineRow
	err  error
	last Query
}

func (s *stubRepo) Timeline(_ context.Context, q Query) ([]TimelineRow, error) {
	s.last = q
	if s.err != nil {
		return nil, s.err
	}
	if q.Limit < len(s.rows) {
		return s.rows[:q.Limit], nil
	}
	return s.rows, nil
}

func row(id int64, action string) TimelineRow {
	return TimelineRow{
		ID:       id,
		At:       time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		ActorID:  7,
		Action:   action,
		Entity:   "invoice",
		EntityID: "1",
		Meta:     json.RawMessage(`{"number":"SAL-2026-001"}`),
	}
}

func TestTimelinePaging(t *testing.T) {
	repo := &stubRepo{rows: []TimelineRow{row(3, "INVOICE_PAY"), row(2, "INVOICE_SUBMIT"), row(1, "INVOICE_CREATE")}}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 1, PageSize: 2})
	require.NoError(t, err)
	assert.Len(t, result.Rows, 2)
	assert.True(t, result.Paging.HasNext)
	assert.Equal(t, 2, result.Paging.NextPage)
	assert.Zero(t, result.Paging.PrevPage)
	assert.Equal(t, 3, repo.last.Limit)
	assert.Equal(t, 0, repo.last.Offset)

	_, err = svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 500})
	require.NoError(t, err)
	assert.Equal(t, maxPageSize+1, repo.last.Limit)
	assert.Equal(t, 2*maxPageSize, repo.last.Offset)
}

func TestTimelineEmptyRowsEncodeAsArray(t *testing.T) {
	result, err := NewService(&stubRepo{}).Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	assert.NotNil(t, result.Rows)
	assert.Equal(t, defaultPageSize, result.Paging.PageSize)
	assert.Equal(t, 1, result.Paging.Page)
}

func TestTimelineRejectsInvertedRange(t *testing.T) {
	_, err := NewService(&stubRepo{}).Timeline(context.Background(), TimelineFilters{
		From: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	var ve *shared.ValidationError
	require.ErrorAs(t, err, &ve)
}

func TestTimelineWrapsRepositoryErrors(t *testing.T) {
	_, err := NewService(&stubRepo{err: errors.New("conn reset")}).Timeline(context.Background(), TimelineFilters{})
	var pe *shared.PersistenceError
	require.ErrorAs(t, err, &pe)
}

func TestExportWritesCSV(t *testing.T) {
	repo := &stubRepo{rows: []TimelineRow{row(1, "INVOICE_CREATE")}}
	rows, err := NewService(repo).Export(context.Background(), TimelineFilters{Entity: "invoice"})
	require.NoError(t, err)
	assert.Equal(t, exportLimit, repo.last.Limit)

	out, err := WriteCSV(rows)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "id,occurred_at,actor_id,action,entity,entity_id,meta", lines[0])
	assert.Equal(t, `1,2026-03-10T09:00:00Z,7,INVOICE_CREATE,invoice,1,"{""number"":""SAL-2026-001""}"`, lines[1])
}

func TestBuildWhere(t *testing.T) {
	actor := int64(7)
	where, args := buildWhere(TimelineFilters{ActorID: &actor, Entity: "invoice", Action: "INVOICE_PAY"})
	assert.Equal(t, "\nWHERE actor_id = $1 AND entity = $2 AND action = $3", where)
	assert.Equal(t, []any{int64(7), "invoice", "INVOICE_PAY"}, args)

	where, args = buildWhere(TimelineFilters{})
	assert.Empty(t, where)
	assert.Empty(t, args)
}
