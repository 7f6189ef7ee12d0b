package job

import (
	"context"
	"database/sql"
	"errors"
)

type Repository interface {
	Create(ctx context.Context, job *Job) error
	SetStatus(ctx context.Context, id, status string) error
	Complete(ctx context.Context, id, productID string, documents int) error
	Fail(ctx context.Context, id, message string) error
	Get(ctx context.Context, id string) (*Job, error)
	ListByStatus(ctx context.Context, status string) ([]Job, error)
	CountByStatus(ctx context.Context, status string) (int, error)
	MarkRetried(ctx context.Context, id string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const jobColumns = `id, url, status, product_id, documents, error, retries, created_at, updated_at`

func (r *PostgresRepo) Create(ctx context.Context, job *Job) error {
	if job.Status == "" {
		job.Status = StatusPending
	}
	query := `INSERT INTO scrape_jobs (url, status) VALUES ($1, $2) RETURNING id, retries, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query, job.URL, job.Status).
		Scan(&job.ID, &job.Retries, &job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id, status string) error {
	query := `UPDATE scrape_jobs SET status = $1, updated_at = NOW() WHERE id = $2`
	return r.exec(ctx, query, status, id)
}

func (r *PostgresRepo) Complete(ctx context.Context, id, productID string, documents int) error {
	query := `UPDATE scrape_jobs SET status = $1, product_id = $2, documents = $3, error = '', updated_at = NOW() WHERE id = $4`
	return r.exec(ctx, query, StatusSucceeded, productID, documents, id)
}

func (r *PostgresRepo) Fail(ctx context.Context, id, message string) error {
	query := `UPDATE scrape_jobs SET status = $1, error = $2, updated_at = NOW() WHERE id = $3`
	return r.exec(ctx, query, StatusFailed, message, id)
}

func (r *PostgresRepo) MarkRetried(ctx context.Context, id string) error {
	query := `UPDATE scrape_jobs SET status = $1, retries = retries + 1, error = '', updated_at = NOW() WHERE id = $2`
	return r.exec(ctx, query, StatusPending, id)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE id = $1`
	j, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (r *PostgresRepo) ListByStatus(ctx context.Context, status string) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM scrape_jobs WHERE status = $1 ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (r *PostgresRepo) CountByStatus(ctx context.Context, status string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM scrape_jobs WHERE status = $1`
	err := r.db.QueryRowContext(ctx, query, status).Scan(&count)
	return count, err
}

func (r *PostgresRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	j := &Job{}
	err := row.Scan(&j.ID, &j.URL, &j.Status, &j.ProductID, &j.Documents, &j.Error, &j.Retries, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return j, nil
}
