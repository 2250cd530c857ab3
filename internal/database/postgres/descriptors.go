package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/faceproc/internal/database"
	"github.com/kozaktomas/faceproc/internal/faceerr"
)

const descriptorColumns = `id, label, descriptor, dim, source, bbox, det_score, created_at`

// DescriptorRepository stores the labeled descriptor gallery in PostgreSQL using pgvector.
type DescriptorRepository struct {
	pool *Pool
}

// NewDescriptorRepository creates a new PostgreSQL descriptor repository.
func NewDescriptorRepository(pool *Pool) *DescriptorRepository {
	return &DescriptorRepository{pool: pool}
}

var _ database.DescriptorWriter = (*DescriptorRepository)(nil)

// List returns all descriptors in enrollment order, grouped so that labels keep the
// position of their first descriptor.
func (r *DescriptorRepository) List(ctx context.Context) ([]database.StoredDescriptor, error) {
	query := `
		SELECT ` + descriptorColumns + `
		FROM descriptors d
		JOIN (SELECT label AS l, MIN(seq) AS first_seq FROM descriptors GROUP BY label) f ON f.l = d.label
		ORDER BY f.first_seq, d.seq
	`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query descriptors: %w", err)
	}
	defer rows.Close()

	return scanDescriptors(rows)
}

// GetByLabel returns the descriptors of one label in enrollment order.
func (r *DescriptorRepository) GetByLabel(ctx context.Context, label string) ([]database.StoredDescriptor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+descriptorColumns+`
		FROM descriptors
		WHERE label = $1
		ORDER BY seq
	`, label)
	if err != nil {
		return nil, fmt.Errorf("query descriptors by label: %w", err)
	}
	defer rows.Close()

	return scanDescriptors(rows)
}

// Labels returns the per-label descriptor counts.
func (r *DescriptorRepository) Labels(ctx context.Context) ([]database.LabelSummary, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT label, COUNT(*), MIN(dim)
		FROM descriptors
		GROUP BY label
		ORDER BY MIN(seq)
	`)
	if err != nil {
		return nil, fmt.Errorf("query labels: %w", err)
	}
	defer rows.Close()

	var labels []database.LabelSummary
	for rows.Next() {
		var l database.LabelSummary
		if err := rows.Scan(&l.Label, &l.Count, &l.Dim); err != nil {
			return nil, fmt.Errorf("scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate labels: %w", err)
	}
	return labels, nil
}

// Count returns the total number of descriptors stored.
func (r *DescriptorRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM descriptors").Scan(&count); err != nil {
		return 0, fmt.Errorf("count descriptors: %w", err)
	}
	return count, nil
}

// FindNearest returns the descriptors closest to the query using the pgvector L2 operator.
// Only descriptors of the query's length are compared.
func (r *DescriptorRepository) FindNearest(ctx context.Context, descriptor []float32, limit int) ([]database.NearestDescriptor, error) {
	if limit <= 0 {
		return nil, nil
	}
	vec := pgvector.NewVector(descriptor)
	rows, err := r.pool.Query(ctx, `
		SELECT `+descriptorColumns+`, descriptor <-> $1::vector AS distance
		FROM descriptors
		WHERE dim = $2
		ORDER BY distance, seq
		LIMIT $3
	`, vec, len(descriptor), limit)
	if err != nil {
		return nil, fmt.Errorf("query nearest descriptors: %w", err)
	}
	defer rows.Close()

	var nearest []database.NearestDescriptor
	for rows.Next() {
		var n database.NearestDescriptor
		stored, err := scanDescriptorRow(rows, &n.Distance)
		if err != nil {
			return nil, err
		}
		n.StoredDescriptor = stored
		nearest = append(nearest, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest descriptors: %w", err)
	}
	return nearest, nil
}

// Save inserts descriptors in one transaction and returns their new IDs.
func (r *DescriptorRepository) Save(ctx context.Context, descriptors []database.StoredDescriptor) ([]uuid.UUID, error) {
	if len(descriptors) == 0 {
		return nil, nil
	}
	dim := len(descriptors[0].Descriptor)
	for i, d := range descriptors {
		if d.Label == "" {
			return nil, fmt.Errorf("descriptor %d has no label: %w", i, faceerr.ErrConfiguration)
		}
		if len(d.Descriptor) == 0 || len(d.Descriptor) != dim {
			return nil, fmt.Errorf("descriptor %d has length %d, want %d: %w", i, len(d.Descriptor), dim, faceerr.ErrInconsistentDescriptorLength)
		}
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO descriptors (id, label, descriptor, dim, source, bbox, det_score)
		VALUES ($1, $2, $3::vector, $4, $5, $6, $7)
	`)
	if err != nil {
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]uuid.UUID, len(descriptors))
	for i, d := range descriptors {
		id := d.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		var bbox any
		if len(d.BBox) > 0 {
			bbox = pq.Array(d.BBox)
		}
		if _, err := stmt.ExecContext(ctx,
			id,
			d.Label,
			pgvector.NewVector(d.Descriptor),
			len(d.Descriptor),
			nullString(d.Source),
			bbox,
			d.DetScore,
		); err != nil {
			return nil, fmt.Errorf("insert descriptor %d: %w", i, err)
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return ids, nil
}

// DeleteLabel removes every descriptor of a label.
func (r *DescriptorRepository) DeleteLabel(ctx context.Context, label string) (int, error) {
	result, err := r.pool.Exec(ctx, "DELETE FROM descriptors WHERE label = $1", label)
	if err != nil {
		return 0, fmt.Errorf("delete label: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

// Delete removes a single descriptor.
func (r *DescriptorRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, "DELETE FROM descriptors WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete descriptor: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// scanDescriptorRow scans the descriptor columns, followed by any extra destinations.
func scanDescriptorRow(scanner interface{ Scan(...any) error }, extraDest ...any) (database.StoredDescriptor, error) {
	var d database.StoredDescriptor
	var vec pgvector.Vector
	var bbox pq.Float64Array
	var source sql.NullString
	var detScore sql.NullFloat64

	dest := make([]any, 0, 8+len(extraDest))
	dest = append(dest, &d.ID, &d.Label, &vec, &d.Dim, &source, &bbox, &detScore, &d.CreatedAt)
	dest = append(dest, extraDest...)

	if err := scanner.Scan(dest...); err != nil {
		return d, fmt.Errorf("scan descriptor: %w", err)
	}

	d.Descriptor = vec.Slice()
	if len(bbox) > 0 {
		d.BBox = []float64(bbox)
	}
	if source.Valid {
		d.Source = source.String
	}
	if detScore.Valid {
		d.DetScore = detScore.Float64
	}
	return d, nil
}

func scanDescriptors(rows *sql.Rows) ([]database.StoredDescriptor, error) {
	var descriptors []database.StoredDescriptor
	for rows.Next() {
		d, err := scanDescriptorRow(rows)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate descriptors: %w", err)
	}
	return descriptors, nil
}
