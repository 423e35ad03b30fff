package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/albumwall/internal/models"
	"github.com/desertthunder/albumwall/internal/shared"
)

// LoginRepository implements [models.Repository] for [models.LoginEvent] persistence
// and summarises recorded logins.
type LoginRepository struct {
	db *sql.DB
}

// NewLoginRepository creates a new [LoginRepository] with the given database connection
func NewLoginRepository(db *sql.DB) *LoginRepository {
	return &LoginRepository{db: db}
}

// Create inserts a login event with generated ID and sequence. Timestamps are stored in UTC.
func (r *LoginRepository) Create(event *models.LoginEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "logins")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	event.SetID(id)
	event.SetSequence(sequence)
	event.At = event.At.UTC()

	query := `
		INSERT INTO logins (id, sequence, user_id, logged_in_at, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, event.UserID, event.At, event.CreatedAt().UTC(), event.UpdatedAt().UTC())
	if err != nil {
		return fmt.Errorf("failed to insert login: %w", err)
	}
	return nil
}

// Get retrieves a login event by ID, excluding soft-deleted events
func (r *LoginRepository) Get(id string) (*models.LoginEvent, error) {
	query := `
		SELECT id, sequence, user_id, logged_in_at, created_at, updated_at, deleted_at
		FROM logins
		WHERE id = ? AND deleted_at IS NULL
	`

	event, err := scanLogin(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("login not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query login: %w", err)
	}
	return event, nil
}

// Update modifies the user and timestamp of an existing event
func (r *LoginRepository) Update(event *models.LoginEvent) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()
	event.SetUpdatedAt(now)

	query := `
		UPDATE logins
		SET user_id = ?, logged_in_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, event.UserID, event.At.UTC(), now, event.ID())
	if err != nil {
		return fmt.Errorf("failed to update login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("login not found or already deleted: %s", event.ID())
	}
	return nil
}

// Delete soft-deletes a login event by ID
func (r *LoginRepository) Delete(id string) error {
	query := `
		UPDATE logins
		SET deleted_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete login: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("login not found or already deleted: %s", id)
	}
	return nil
}

// List retrieves login events, newest first. Supported criteria: "user_id" (string), "since" (time.Time).
func (r *LoginRepository) List(criteria map[string]any) ([]*models.LoginEvent, error) {
	query := `
		SELECT id, sequence, user_id, logged_in_at, created_at, updated_at, deleted_at
		FROM logins
		WHERE deleted_at IS NULL
	`

	args := []any{}

	if userID, ok := criteria["user_id"].(string); ok && userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	if since, ok := criteria["since"].(time.Time); ok && !since.IsZero() {
		query += " AND logged_in_at >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY logged_in_at DESC, sequence DESC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logins: %w", err)
	}
	defer rows.Close()

	var events []*models.LoginEvent
	for rows.Next() {
		event, err := scanLogin(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan login: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

// Summary counts logins overall, distinct users, and logins since midnight UTC of now's day.
func (r *LoginRepository) Summary(now time.Time) (*models.Analytics, error) {
	summary := &models.Analytics{Configured: true}

	err := r.db.QueryRow(`
		SELECT COUNT(*), COUNT(DISTINCT user_id)
		FROM logins
		WHERE deleted_at IS NULL
	`).Scan(&summary.TotalLogins, &summary.UniqueUsers)
	if err != nil {
		return nil, fmt.Errorf("failed to count logins: %w", err)
	}

	y, m, d := now.UTC().Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	err = r.db.QueryRow(`
		SELECT COUNT(*)
		FROM logins
		WHERE deleted_at IS NULL AND logged_in_at >= ?
	`, midnight).Scan(&summary.LoginsToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count today's logins: %w", err)
	}

	if summary.TotalLogins == 0 {
		return summary, nil
	}

	var last time.Time
	err = r.db.QueryRow(`
		SELECT logged_in_at
		FROM logins
		WHERE deleted_at IS NULL
		ORDER BY logged_in_at DESC
		LIMIT 1
	`).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("failed to query last login: %w", err)
	}
	summary.LastLoginAt = last.UTC()
	return summary, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLogin(row rowScanner) (*models.LoginEvent, error) {
	var (
		id        string
		sequence  int
		userID    string
		at        time.Time
		createdAt time.Time
		updatedAt time.Time
		deletedAt sql.NullTime
	)

	if err := row.Scan(&id, &sequence, &userID, &at, &createdAt, &updatedAt, &deletedAt); err != nil {
		return nil, err
	}

	event := models.NewLoginEvent(userID, at.UTC())
	event.SetID(id)
	event.SetSequence(sequence)
	event.SetCreatedAt(createdAt)
	event.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		event.SetDeletedAt(&deletedAt.Time)
	}
	return event, nil
}
