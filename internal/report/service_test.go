package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/partsdesk/partsdesk/internal/platform/cache"
	"github.com/partsdesk/partsdesk/internal/shared"
)

type fakeRepo struct {
	mu        sync.Mutex
	summaries map[string]Summary
	weeks     []WeekBucket
	err       error
	calls     int
	ranges    [][2]time.Time
}

func (f *fakeRepo) Summarize(_ context.Context, invoiceType string, from, to time.Time) (Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ranges = append(f.ranges, [2]time.Time{from, to})
	if f.err != nil {
		return Summary{}, f.err
	}
	return f.summaries[invoiceType], nil
}

func (f *fakeRepo) WeeklySales(_ context.Context, from, to time.Time) ([]WeekBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.ranges = append(f.ranges, [2]time.Time{from, to})
	if f.err != nil {
		return nil, f.err
	}
	return f.weeks, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func newCachedService(t *testing.T, repo Repository) *Service {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, cache.NewVersioned(client, "reports", time.Minute), nil)
}

func TestProfitAndLoss(t *testing.T) {
	repo := &fakeRepo{summaries: map[string]Summary{
		"SALE":     {Count: 2, Taxable: dec("1000.00"), GST: dec("180.00"), Total: dec("1180.00")},
		"PURCHASE": {Count: 1, Taxable: dec("600.00"), GST: dec("108.00"), Total: dec("708.00")},
	}}
	svc := NewService(repo, nil, nil)

	pl, err := svc.ProfitAndLoss(context.Background(), day("2026-04-01"), day("2026-04-30"))
	require.NoError(t, err)
	require.Equal(t, "2026-04-01", pl.From)
	require.Equal(t, "2026-04-30", pl.To)
	require.True(t, pl.GrossProfit.Equal(dec("400.00")))
	require.True(t, pl.OutputGST.Equal(dec("180.00")))
	require.True(t, pl.InputGST.Equal(dec("108.00")))
	require.True(t, pl.NetGSTPayable.Equal(dec("72.00")))
	require.Equal(t, 2, pl.Sales.Count)
	require.Equal(t, 1, pl.Purchases.Count)

	require.Len(t, repo.ranges, 2)
	for _, r := range repo.ranges {
		require.Equal(t, day("2026-04-01"), r[0])
		require.Equal(t, day("2026-05-01"), r[1], "upper bound is exclusive day after to")
	}
}

func TestProfitAndLossValidation(t *testing.T) {
	svc := NewService(&fakeRepo{}, nil, nil)

	_, err := svc.ProfitAndLoss(context.Background(), day("2026-05-01"), day("2026-04-01"))
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.ProfitAndLoss(context.Background(), time.Time{}, day("2026-04-01"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestProfitAndLossWrapsRepositoryFailure(t *testing.T) {
	svc := NewService(&fakeRepo{err: errors.New("connection reset")}, nil, nil)

	_, err := svc.ProfitAndLoss(context.Background(), day("2026-04-01"), day("2026-04-30"))
	require.ErrorIs(t, err, shared.ErrPersistence)
}

func TestProfitAndLossCachedUntilInvalidated(t *testing.T) {
	repo := &fakeRepo{summaries: map[string]Summary{
		"SALE": {Count: 1, Taxable: dec("100.00"), GST: dec("18.00"), Total: dec("118.00")},
	}}
	svc := newCachedService(t, repo)
	ctx := context.Background()

	first, err := svc.ProfitAndLoss(ctx, day("2026-04-01"), day("2026-04-30"))
	require.NoError(t, err)
	second, err := svc.ProfitAndLoss(ctx, day("2026-04-01"), day("2026-04-30"))
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls)
	require.True(t, first.GrossProfit.Equal(second.GrossProfit))

	svc.Invalidate(ctx)
	_, err = svc.ProfitAndLoss(ctx, day("2026-04-01"), day("2026-04-30"))
	require.NoError(t, err)
	require.Equal(t, 4, repo.calls)
}

func TestWeeklySalesFillsMissingWeeks(t *testing.T) {
	repo := &fakeRepo{weeks: []WeekBucket{
		{WeekStart: day("2026-09-28"), Count: 3, Total: dec("3540.00")},
		{WeekStart: day("2026-10-12"), Count: 1, Total: dec("1180.00")},
	}}
	svc := NewService(repo, nil, nil)

	buckets, err := svc.WeeklySales(context.Background(), 3, day("2026-10-16"))
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	require.Equal(t, day("2026-09-28"), buckets[0].WeekStart)
	require.Equal(t, 3, buckets[0].Count)
	require.Equal(t, day("2026-10-05"), buckets[1].WeekStart)
	require.Zero(t, buckets[1].Count)
	require.True(t, buckets[1].Total.IsZero())
	require.Equal(t, day("2026-10-12"), buckets[2].WeekStart)
	require.True(t, buckets[2].Total.Equal(dec("1180.00")))

	require.Equal(t, day("2026-09-28"), repo.ranges[0][0])
	require.Equal(t, day("2026-10-19"), repo.ranges[0][1])
}

func TestWeeklySalesDefaultsAndBounds(t *testing.T) {
	svc := NewService(&fakeRepo{}, nil, nil)

	buckets, err := svc.WeeklySales(context.Background(), 0, day("2026-10-16"))
	require.NoError(t, err)
	require.Len(t, buckets, defaultWeeks)

	_, err = svc.WeeklySales(context.Background(), 53, day("2026-10-16"))
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestWeekStartIsMonday(t *testing.T) {
	require.Equal(t, day("2026-10-12"), weekStart(day("2026-10-12")))
	require.Equal(t, day("2026-10-12"), weekStart(day("2026-10-18")))
	require.Equal(t, time.Monday, weekStart(day("2026-01-01")).Weekday())
}
