package fiscal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-invoicing/internal/platform/db"
)

// Repository exposes financial year persistence.
type Repository interface {
	List(ctx context.Context) ([]FinancialYear, error)
	Get(ctx context.Context, id string) (FinancialYear, error)
	Delete(ctx context.Context, id string) error
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations used inside a transaction.
type TxRepository interface {
	LoadForUpdate(ctx context.Context, id string) (FinancialYear, error)
	YearExists(ctx context.Context, year int) (bool, error)
	LatestYear(ctx context.Context) (int, error)
	Insert(ctx context.Context, in CreateInput, status Status) (FinancialYear, error)
	UpdateStatus(ctx context.Context, id string, status Status) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a pgx backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const yearColumns = `id, year, start_date, end_date, status, created_at, updated_at`

func (r *repository) List(ctx context.Context) ([]FinancialYear, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+yearColumns+` FROM financial_years ORDER BY year`)
	if err != nil {
		return nil, fmt.Errorf("fiscal: list years: %w", err)
	}
	defer rows.Close()
	var out []FinancialYear
	for rows.Next() {
		fy, err := scanYear(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, fy)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, id string) (FinancialYear, error) {
	fy, err := scanYear(r.pool.QueryRow(ctx, `SELECT `+yearColumns+` FROM financial_years WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return FinancialYear{}, ErrYearNotFound
	}
	return fy, err
}

func (r *repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM financial_years WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("fiscal: delete year: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrYearNotFound
	}
	return nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (r *txRepository) LoadForUpdate(ctx context.Context, id string) (FinancialYear, error) {
	fy, err := scanYear(r.tx.QueryRow(ctx, `SELECT `+yearColumns+` FROM financial_years WHERE id=$1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return FinancialYear{}, ErrYearNotFound
	}
	return fy, err
}

func (r *txRepository) YearExists(ctx context.Context, year int) (bool, error) {
	var exists bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM financial_years WHERE year=$1)`, year).Scan(&exists)
	return exists, err
}

func (r *txRepository) LatestYear(ctx context.Context) (int, error) {
	var year *int
	if err := r.tx.QueryRow(ctx, `SELECT MAX(year) FROM financial_years`).Scan(&year); err != nil {
		return 0, err
	}
	if year == nil {
		return 0, nil
	}
	return *year, nil
}

func (r *txRepository) Insert(ctx context.Context, in CreateInput, status Status) (FinancialYear, error) {
	now := time.Now().UTC()
	fy := FinancialYear{
		ID:        uuid.NewString(),
		Year:      in.Year,
		StartDate: DateOf(in.StartDate),
		EndDate:   DateOf(in.EndDate),
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.tx.Exec(ctx, `INSERT INTO financial_years (`+yearColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		fy.ID, fy.Year, fy.StartDate, fy.EndDate, string(fy.Status), fy.CreatedAt, fy.UpdatedAt)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return FinancialYear{}, fmt.Errorf("%w: %d", ErrDuplicateYear, in.Year)
		}
		return FinancialYear{}, fmt.Errorf("fiscal: insert year: %w", err)
	}
	return fy, nil
}

func (r *txRepository) UpdateStatus(ctx context.Context, id string, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE financial_years SET status=$2, updated_at=NOW() WHERE id=$1`, id, string(status))
	return err
}

func scanYear(row pgx.Row) (FinancialYear, error) {
	var fy FinancialYear
	var status string
	if err := row.Scan(&fy.ID, &fy.Year, &fy.StartDate, &fy.EndDate, &status, &fy.CreatedAt, &fy.UpdatedAt); err != nil {
		return FinancialYear{}, err
	}
	fy.Status = Status(status)
	fy.StartDate = DateOf(fy.StartDate)
	fy.EndDate = DateOf(fy.EndDate)
	return fy, nil
}
