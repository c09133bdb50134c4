package fiscal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryRepository struct {
	years   map[string]FinancialYear
	listErr error
	txErr   error
}

func newMemoryRepository(years ...FinancialYear) *memoryRepository {
	m := &memoryRepository{years: make(map[string]FinancialYear)}
	for _, fy := range years {
		m.years[fy.ID] = fy
	}
	return m
}

func (m *memoryRepository) List(ctx context.Context) ([]FinancialYear, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]FinancialYear, 0, len(m.years))
	for _, fy := range m.years {
		out = append(out, fy)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out, nil
}

func (m *memoryRepository) Get(ctx context.Context, id string) (FinancialYear, error) {
	fy, ok := m.years[id]
	if !ok {
		return FinancialYear{}, ErrYearNotFound
	}
	return fy, nil
}

func (m *memoryRepository) Delete(ctx context.Context, id string) error {
	if _, ok := m.years[id]; !ok {
		return ErrYearNotFound
	}
	delete(m.years, id)
	return nil
}

func (m *memoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if m.txErr != nil {
		return m.txErr
	}
	staged := make(map[string]FinancialYear, len(m.years))
	for k, v := range m.years {
		staged[k] = v
	}
	tx := &memoryTx{years: staged}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	m.years = tx.years
	return nil
}

type memoryTx struct {
	years map[string]FinancialYear
}

func (t *memoryTx) LoadForUpdate(ctx context.Context, id string) (FinancialYear, error) {
	fy, ok := t.years[id]
	if !ok {
		return FinancialYear{}, ErrYearNotFound
	}
	return fy, nil
}

func (t *memoryTx) YearExists(ctx context.Context, year int) (bool, error) {
	for _, fy := range t.years {
		if fy.Year == year {
			return true, nil
		}
	}
	return false, nil
}

func (t *memoryTx) LatestYear(ctx context.Context) (int, error) {
	latest := 0
	for _, fy := range t.years {
		if fy.Year > latest {
			latest = fy.Year
		}
	}
	return latest, nil
}

func (t *memoryTx) Insert(ctx context.Context, in CreateInput, status Status) (FinancialYear, error) {
	fy := FinancialYear{
		ID:        "fy-" + strconv.Itoa(in.Year),
		Year:      in.Year,
		StartDate: DateOf(in.StartDate),
		EndDate:   DateOf(in.EndDate),
		Status:    status,
	}
	t.years[fy.ID] = fy
	return fy, nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, id string, status Status) error {
	fy := t.years[id]
	fy.Status = status
	t.years[id] = fy
	return nil
}

func newTestService(repo *memoryRepository, cfg ServiceConfig) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, NewRegistry(nil), cfg, logger)
	svc.WithNow(func() time.Time { return date(2025, time.June, 1) })
	return svc
}

func TestServiceCreateRefreshesRegistry(t *testing.T) {
	repo := newMemoryRepository()
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()

	fy, err := svc.Create(ctx, CreateInput{Year: 2025, StartDate: date(2025, 1, 1), EndDate: date(2025, 12, 31)})
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, fy.Status)

	active := svc.Registry().ListActiveYears()
	require.Len(t, active, 1)
	assert.Equal(t, 2025, active[0].Year)

	_, err = svc.Create(ctx, CreateInput{Year: 2025, StartDate: date(2025, 1, 1), EndDate: date(2025, 12, 31)})
	assert.ErrorIs(t, err, ErrDuplicateYear)
}

func TestServiceCreateRejectsInvertedRange(t *testing.T) {
	svc := newTestService(newMemoryRepository(), ServiceConfig{})

	_, err := svc.Create(context.Background(), CreateInput{Year: 2025, StartDate: date(2025, 12, 31), EndDate: date(2025, 1, 1)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestServiceCloseLatestCreatesNextYear(t *testing.T) {
	repo := newMemoryRepository(calendarYear(2024, StatusClosed), calendarYear(2025, StatusOpen))
	svc := newTestService(repo, ServiceConfig{AutoCreateNext: true})

	result, err := svc.Close(context.Background(), "fy-2025")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, result.Closed.Status)
	require.NotNil(t, result.Created)
	assert.Equal(t, 2026, result.Created.Year)
	assert.Equal(t, date(2026, time.January, 1), result.Created.StartDate)
	assert.Equal(t, date(2026, time.December, 31), result.Created.EndDate)

	active := svc.Registry().ListActiveYears()
	require.Len(t, active, 1)
	assert.Equal(t, 2026, active[0].Year)
}

func TestServiceCloseOlderYearDoesNotCreate(t *testing.T) {
	repo := newMemoryRepository(calendarYear(2024, StatusOpen), calendarYear(2025, StatusOpen))
	svc := newTestService(repo, ServiceConfig{AutoCreateNext: true})

	result, err := svc.Close(context.Background(), "fy-2024")
	require.NoError(t, err)
	assert.Nil(t, result.Created)
	assert.Len(t, repo.years, 2)
}

func TestServiceCloseWithoutAutoCreate(t *testing.T) {
	repo := newMemoryRepository(calendarYear(2025, StatusOpen))
	svc := newTestService(repo, ServiceConfig{})

	result, err := svc.Close(context.Background(), "fy-2025")
	require.NoError(t, err)
	assert.Nil(t, result.Created)

	_, err = svc.Close(context.Background(), "fy-2025")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestServiceCloseLeavesStateOnFailure(t *testing.T) {
	repo := newMemoryRepository(calendarYear(2025, StatusOpen))
	repo.txErr = errors.New("connection reset")
	svc := newTestService(repo, ServiceConfig{AutoCreateNext: true})

	_, err := svc.Close(context.Background(), "fy-2025")
	require.Error(t, err)
	assert.Equal(t, StatusOpen, repo.years["fy-2025"].Status)
}

func TestServiceDeleteIsPermanent(t *testing.T) {
	repo := newMemoryRepository(calendarYear(2025, StatusOpen))
	svc := newTestService(repo, ServiceConfig{})
	ctx := context.Background()
	require.NoError(t, svc.Refresh(ctx))

	require.NoError(t, svc.Delete(ctx, "fy-2025"))
	assert.Empty(t, svc.Registry().Years())
	assert.ErrorIs(t, svc.Delete(ctx, "fy-2025"), ErrYearNotFound)
}

func TestServiceSetCurrent(t *testing.T) {
	repo := newMemoryRepository(calendarYear(2024, StatusOpen), calendarYear(2025, StatusOpen))
	svc := newTestService(repo, ServiceConfig{})
	require.NoError(t, svc.Refresh(context.Background()))

	fy, err := svc.SetCurrent(2024)
	require.NoError(t, err)
	assert.Equal(t, 2024, fy.Year)

	_, err = svc.SetCurrent(2040)
	assert.ErrorIs(t, err, ErrYearNotFound)
}

func TestServiceSetCurrentRefusesClosedYear(t *testing.T) {
	repo := newMemoryRepository(calendarYear(2024, StatusClosed), calendarYear(2025, StatusOpen))
	svc := newTestService(repo, ServiceConfig{})
	require.NoError(t, svc.Refresh(context.Background()))

	_, err := svc.SetCurrent(2024)
	assert.ErrorIs(t, err, ErrYearClosed)
}
