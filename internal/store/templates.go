package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kpetrov/driplane/internal/domain"
)

// CreateTemplate inserts a message template and returns its ID.
func (s *Store) CreateTemplate(ctx context.Context, t domain.MessageTemplate) (int64, error) {
	active := 0
	if t.Active {
		active = 1
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO message_templates (step, delay_minutes, tag, kind, body, attachment, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(t.Step),
		t.DelayMinutes,
		string(t.Tag),
		string(t.Kind),
		t.Body,
		t.Attachment,
		active,
		formatTime(t.CreatedAt),
	)
	if err != nil {
		return 0, fmt.Errorf("create template: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create template: last insert id: %w", err)
	}
	return id, nil
}

// GetTemplate reads one template by ID.
// Returns domain.NotFoundError if no such template exists.
func (s *Store) GetTemplate(ctx context.Context, id int64) (domain.MessageTemplate, error) {
	t, err := s.scanTemplate(s.db.QueryRowContext(ctx, `
		SELECT id, step, delay_minutes, tag, kind, body, attachment, active, created_at
		FROM message_templates
		WHERE id = ?
	`, id))

	if errors.Is(err, sql.ErrNoRows) {
		return domain.MessageTemplate{}, &domain.NotFoundError{Kind: "template", ID: fmt.Sprintf("%d", id)}
	}
	if err != nil {
		return domain.MessageTemplate{}, fmt.Errorf("get template %d: %w", id, err)
	}
	return t, nil
}

// ListActiveTemplates returns every active template ordered by step and
// ascending delay. Shortest delays first keeps firing order fair when a
// backlog builds up.
func (s *Store) ListActiveTemplates(ctx context.Context) ([]domain.MessageTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, step, delay_minutes, tag, kind, body, attachment, active, created_at
		FROM message_templates
		WHERE active = 1
		ORDER BY step ASC, delay_minutes ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	defer rows.Close()

	var templates []domain.MessageTemplate
	for rows.Next() {
		t, err := s.scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate templates: %w", err)
	}
	return templates, nil
}

// SetTemplateActive flips a template's active flag. Firing never mutates a
// template; this flag is the only control over future matches.
func (s *Store) SetTemplateActive(ctx context.Context, id int64, active bool) error {
	flag := 0
	if active {
		flag = 1
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE message_templates SET active = ? WHERE id = ?
	`, flag, id)
	if err != nil {
		return fmt.Errorf("set template active: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set template active: rows affected: %w", err)
	}
	if affected == 0 {
		return &domain.NotFoundError{Kind: "template", ID: fmt.Sprintf("%d", id)}
	}
	return nil
}

func (s *Store) scanTemplate(row rowScanner) (domain.MessageTemplate, error) {
	var (
		t         domain.MessageTemplate
		active    int
		createdAt string
	)
	err := row.Scan(&t.ID, (*string)(&t.Step), &t.DelayMinutes, (*string)(&t.Tag), (*string)(&t.Kind), &t.Body, &t.Attachment, &active, &createdAt)
	if err != nil {
		return domain.MessageTemplate{}, err
	}
	if t.CreatedAt, err = parseTime(createdAt); err != nil {
		return domain.MessageTemplate{}, err
	}
	t.Active = active == 1
	return t, nil
}
