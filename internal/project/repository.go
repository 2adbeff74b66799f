package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
)

// Repository defines project persistence operations.
//
// List always reads the store so changes made through the API (mode,
// target) are seen by the very next control cycle.
type Repository interface {
	List(ctx context.Context) ([]Project, error)
	GetByID(ctx context.Context, id string) (*Project, error)
	Create(ctx context.Context, p *Project) error
	Delete(ctx context.Context, id string) error

	UpdateCurrentTemperature(ctx context.Context, id string, value float64) error
	UpdateOutletActive(ctx context.Context, id string, active bool) error
	UpdateControlMode(ctx context.Context, id string, mode ControlMode) error
	UpdateTargetTemperature(ctx context.Context, id string, target float64) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const projectColumns = `id, name, sensor_ref, outlet_ref, target_temperature,
	current_temperature, outlet_active, control_mode, created_at, updated_at`

// List returns all projects ordered by name.
func (r *SQLiteRepository) List(ctx context.Context) ([]Project, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project: %w", err)
		}
		projects = append(projects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return projects, nil
}

// GetByID returns ErrProjectNotFound if the project does not exist.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("querying project by id: %w", err)
	}
	return p, nil
}

// Create validates and inserts a project, generating an ID and defaulting
// the mode to automatic when unset.
func (r *SQLiteRepository) Create(ctx context.Context, p *Project) error {
	if p.ID == "" {
		p.ID = GenerateID()
	}
	if p.ControlMode == "" {
		p.ControlMode = ModeAutomatic
	}
	if err := ValidateProject(p); err != nil {
		return err
	}

	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	var current sql.NullFloat64
	if p.CurrentTemperature != nil {
		current = sql.NullFloat64{Float64: *p.CurrentTemperature, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.SensorRef, p.OutletRef, p.TargetTemperature,
		current, boolToInt(p.OutletActive), string(p.ControlMode),
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return ErrProjectExists
		}
		return fmt.Errorf("inserting project: %w", err)
	}
	return nil
}

// Delete removes a project by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	return requireRow(result)
}

// UpdateCurrentTemperature stores the latest observed temperature.
func (r *SQLiteRepository) UpdateCurrentTemperature(ctx context.Context, id string, value float64) error {
	return r.updateColumn(ctx, id, "current_temperature", value)
}

// UpdateOutletActive stores the last commanded outlet state.
func (r *SQLiteRepository) UpdateOutletActive(ctx context.Context, id string, active bool) error {
	return r.updateColumn(ctx, id, "outlet_active", boolToInt(active))
}

// UpdateControlMode switches between automatic and manual control.
func (r *SQLiteRepository) UpdateControlMode(ctx context.Context, id string, mode ControlMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: control_mode %q", ErrInvalidProject, mode)
	}
	return r.updateColumn(ctx, id, "control_mode", string(mode))
}

// UpdateTargetTemperature changes the set point.
func (r *SQLiteRepository) UpdateTargetTemperature(ctx context.Context, id string, target float64) error {
	if err := ValidateTarget(target); err != nil {
		return err
	}
	return r.updateColumn(ctx, id, "target_temperature", target)
}

// updateColumn sets one column plus updated_at. column is always a
// compile-time constant from this file.
func (r *SQLiteRepository) updateColumn(ctx context.Context, id, column string, value any) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projects SET `+column+` = ?, updated_at = ? WHERE id = ?`,
		value, time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("updating project %s: %w", column, err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(s rowScanner) (*Project, error) {
	var p Project
	var current sql.NullFloat64
	var outletActive int
	var mode, createdAt, updatedAt string

	err := s.Scan(&p.ID, &p.Name, &p.SensorRef, &p.OutletRef, &p.TargetTemperature,
		&current, &outletActive, &mode, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if current.Valid {
		v := current.Float64
		p.CurrentTemperature = &v
	}
	p.OutletActive = outletActive != 0
	p.ControlMode = ControlMode(mode)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // written by Create
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // written by this package
	return &p, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
