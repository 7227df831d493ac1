package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/freshloop/freshloop/internal/domain"
)

// PostFilter narrows List and Count. Zero fields match everything.
type PostFilter struct {
	Type   domain.PostType
	Status domain.PostStatus
}

type PostStore struct {
	db *sql.DB
}

func NewPostStore(db *sql.DB) *PostStore {
	return &PostStore{db: db}
}

var postColumns = []string{
	"id", "user_id", "type", "status", "original_text",
	"location_description", "latitude", "longitude", "created_at",
}

// Upsert inserts or replaces p and its ingredient list. An empty ID is
// replaced with a fresh UUID, and a zero CreatedAt with the current time.
func (s *PostStore) Upsert(ctx context.Context, p *domain.Post) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Status == "" {
		p.Status = domain.PostStatusActive
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, type, status, original_text, location_description, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			user_id = excluded.user_id,
			type = excluded.type,
			status = excluded.status,
			original_text = excluded.original_text,
			location_description = excluded.location_description,
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`, p.ID, p.UserID, string(p.Type), string(p.Status), p.OriginalText,
		p.Location.Description, p.Location.Lat, p.Location.Lng, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert post: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM post_ingredients WHERE post_id = ?`, p.ID); err != nil {
		return fmt.Errorf("failed to clear ingredients: %w", err)
	}

	for i, ing := range p.Ingredients {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO post_ingredients (post_id, position, name, normalized_name, quantity, unit)
			VALUES (?, ?, ?, ?, ?, ?)
		`, p.ID, i, ing.Name, ing.NormalizedName, ing.Quantity, ing.Unit)
		if err != nil {
			return fmt.Errorf("failed to insert ingredient %q: %w", ing.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit post: %w", err)
	}
	return nil
}

func (s *PostStore) GetByID(ctx context.Context, id string) (*domain.Post, error) {
	posts, err := s.query(ctx, sq.Select(postColumns...).From("posts").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, nil
	}
	return &posts[0], nil
}

// List returns posts matching f in creation order, ingredients included.
func (s *PostStore) List(ctx context.Context, f PostFilter) ([]domain.Post, error) {
	q := applyFilter(sq.Select(postColumns...).From("posts"), f).OrderBy("created_at ASC", "id ASC")
	return s.query(ctx, q)
}

func (s *PostStore) Count(ctx context.Context, f PostFilter) (int, error) {
	query, args, err := applyFilter(sq.Select("COUNT(*)").From("posts"), f).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build count query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count posts: %w", err)
	}
	return n, nil
}

func applyFilter(q sq.SelectBuilder, f PostFilter) sq.SelectBuilder {
	if f.Type != "" {
		q = q.Where(sq.Eq{"type": string(f.Type)})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": string(f.Status)})
	}
	return q
}

func (s *PostStore) query(ctx context.Context, q sq.SelectBuilder) ([]domain.Post, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build post query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	var posts []domain.Post
	for rows.Next() {
		var (
			p        domain.Post
			typ      string
			status   string
			lat, lng sql.NullFloat64
		)
		if err := rows.Scan(&p.ID, &p.UserID, &typ, &status, &p.OriginalText,
			&p.Location.Description, &lat, &lng, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		p.Type = domain.PostType(typ)
		p.Status = domain.PostStatus(status)
		if lat.Valid {
			p.Location.Lat = &lat.Float64
		}
		if lng.Valid {
			p.Location.Lng = &lng.Float64
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating posts: %w", err)
	}

	if err := s.attachIngredients(ctx, posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *PostStore) attachIngredients(ctx context.Context, posts []domain.Post) error {
	if len(posts) == 0 {
		return nil
	}

	ids := make([]string, len(posts))
	byID := make(map[string]int, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
		byID[p.ID] = i
	}

	query, args, err := sq.Select("post_id", "name", "normalized_name", "quantity", "unit").
		From("post_ingredients").
		Where(sq.Eq{"post_id": ids}).
		OrderBy("post_id", "position").
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build ingredient query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to list ingredients: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("failed to close rows", "error", err)
		}
	}()

	for rows.Next() {
		var (
			postID string
			ing    domain.Ingredient
			qty    sql.NullFloat64
			unit   sql.NullString
		)
		if err := rows.Scan(&postID, &ing.Name, &ing.NormalizedName, &qty, &unit); err != nil {
			return fmt.Errorf("failed to scan ingredient: %w", err)
		}
		if qty.Valid {
			ing.Quantity = &qty.Float64
		}
		if unit.Valid {
			ing.Unit = &unit.String
		}
		idx := byID[postID]
		posts[idx].Ingredients = append(posts[idx].Ingredients, ing)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating ingredients: %w", err)
	}
	return nil
}
