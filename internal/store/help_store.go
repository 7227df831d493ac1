package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/freshloop/freshloop/internal/domain"
)

type HelpStore struct {
	db *sql.DB
}

func NewHelpStore(db *sql.DB) *HelpStore {
	return &HelpStore{db: db}
}

func (s *HelpStore) Create(ctx context.Context, req domain.HelpRequest) (*domain.HelpMessage, error) {
	have := req.HaveIngredients
	if have == nil {
		have = []string{}
	}
	haveJSON, err := json.Marshal(have)
	if err != nil {
		return nil, fmt.Errorf("failed to encode have_ingredients: %w", err)
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}
	now := time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO help_messages (recipe_name, need_ingredient, have_ingredients, message, requested_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, req.RecipeName, req.NeedIngredient, string(haveJSON), req.Message, req.Timestamp, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert help message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	req.HaveIngredients = have
	return &domain.HelpMessage{ID: id, HelpRequest: req, CreatedAt: now}, nil
}

// List returns help messages newest first.
func (s *HelpStore) List(ctx context.Context) ([]*domain.HelpMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, recipe_name, need_ingredient, have_ingredients, message, requested_at, created_at
		FROM help_messages
		ORDER BY id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list help messages: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var msgs []*domain.HelpMessage
	for rows.Next() {
		var (
			m        domain.HelpMessage
			haveJSON string
		)
		if err := rows.Scan(&m.ID, &m.RecipeName, &m.NeedIngredient, &haveJSON, &m.Message, &m.Timestamp, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan help message: %w", err)
		}
		if err := json.Unmarshal([]byte(haveJSON), &m.HaveIngredients); err != nil {
			return nil, fmt.Errorf("failed to decode have_ingredients for message %d: %w", m.ID, err)
		}
		msgs = append(msgs, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating help messages: %w", err)
	}
	return msgs, nil
}

// MemoryHelpStore keeps help messages in process memory. It is used when the
// server runs without a database.
type MemoryHelpStore struct {
	mu     sync.Mutex
	nextID int64
	msgs   []*domain.HelpMessage
}

func NewMemoryHelpStore() *MemoryHelpStore {
	return &MemoryHelpStore{nextID: 1}
}

func (s *MemoryHelpStore) Create(_ context.Context, req domain.HelpRequest) (*domain.HelpMessage, error) {
	if req.HaveIngredients == nil {
		req.HaveIngredients = []string{}
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := &domain.HelpMessage{ID: s.nextID, HelpRequest: req, CreatedAt: time.Now().UTC()}
	s.nextID++
	s.msgs = append(s.msgs, msg)

	cp := *msg
	return &cp, nil
}

func (s *MemoryHelpStore) List(_ context.Context) ([]*domain.HelpMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.HelpMessage, 0, len(s.msgs))
	for i := len(s.msgs) - 1; i >= 0; i-- {
		cp := *s.msgs[i]
		out = append(out, &cp)
	}
	return out, nil
}
