package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-finder/internal/database"
	"github.com/kozaktomas/face-finder/internal/facematch"
)

// PersonRepository stores the missing-person registry. Each row keeps a
// normalized name_key so lookups ignore case, diacritics and dashes.
type PersonRepository struct {
	pool *Pool
}

// NewPersonRepository creates a new PostgreSQL person repository
func NewPersonRepository(pool *Pool) *PersonRepository {
	return &PersonRepository{pool: pool}
}

// GetPerson retrieves a person by ID, returns nil if not found
func (r *PersonRepository) GetPerson(ctx context.Context, id string) (*database.Person, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil //nolint:nilnil // malformed IDs cannot exist
	}
	var p database.Person
	err := r.pool.QueryRow(ctx,
		"SELECT id, name, created_at FROM missing_persons WHERE id = $1", id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found
	}
	if err != nil {
		return nil, fmt.Errorf("query person: %w", err)
	}
	return &p, nil
}

// FindPersonByName returns the oldest person whose normalized name matches.
func (r *PersonRepository) FindPersonByName(ctx context.Context, name string) (*database.Person, error) {
	key := facematch.NormalizePersonName(name)
	if key == "" {
		return nil, nil //nolint:nilnil // empty names never match
	}
	var p database.Person
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM missing_persons
		WHERE name_key = $1
		ORDER BY created_at
		LIMIT 1
	`, key).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // not found
	}
	if err != nil {
		return nil, fmt.Errorf("query person by name: %w", err)
	}
	return &p, nil
}

// ListPersons returns all persons ordered by name
func (r *PersonRepository) ListPersons(ctx context.Context) ([]database.Person, error) {
	rows, err := r.pool.Query(ctx, "SELECT id, name, created_at FROM missing_persons ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("query persons: %w", err)
	}
	defer rows.Close()

	var persons []database.Person
	for rows.Next() {
		var p database.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		persons = append(persons, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate persons: %w", err)
	}
	return persons, nil
}

// CreatePerson inserts a person with a new random ID
func (r *PersonRepository) CreatePerson(ctx context.Context, name string) (*database.Person, error) {
	if facematch.NormalizePersonName(name) == "" {
		return nil, errors.New("person name is required")
	}
	p := database.Person{ID: uuid.NewString(), Name: name}
	err := r.pool.QueryRow(ctx, `
		INSERT INTO missing_persons (id, name, name_key)
		VALUES ($1, $2, $3)
		RETURNING created_at
	`, p.ID, p.Name, facematch.NormalizePersonName(name)).Scan(&p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert person: %w", err)
	}
	return &p, nil
}

var _ database.PersonWriter = (*PersonRepository)(nil)
