package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/Tyrowin/pollchat/internal/chat"
)

const pgUniqueViolation = "23505"

// PostgresStore keeps the message buffer in a PostgreSQL table. Rows are
// ordered by a sequence column; each append trims the table back to the
// configured capacity.
type PostgresStore struct {
	pool     *pgxpool.Pool
	capacity int
}

// NewPostgresStore connects to databaseURL, verifies the connection and
// applies migrations.
func NewPostgresStore(ctx context.Context, databaseURL string, capacity int, logger zerolog.Logger) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := Migrate(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, capacity: capacityOrDefault(capacity)}, nil
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Append inserts msg and deletes rows that fall outside the capacity.
func (s *PostgresStore) Append(ctx context.Context, msg chat.Message) error {
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_messages (id, body, html, created_at)
			VALUES ($1, $2, $3, $4)
		`, msg.ID, msg.Body, msg.HTML, msg.CreatedAt); err != nil {
			return err
		}

		_, err := tx.Exec(ctx, `
			DELETE FROM chat_messages
			WHERE seq <= (
				SELECT seq FROM chat_messages
				ORDER BY seq DESC
				OFFSET $1 LIMIT 1
			)
		`, s.capacity)
		return err
	})
	if err != nil {
		if isDuplicateKeyError(err) {
			return fmt.Errorf("%w: %s", chat.ErrDuplicateMessage, msg.ID)
		}
		return fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
	}
	return nil
}

// Since returns the rows after the cursor row, oldest first. An empty or
// unknown cursor returns every retained row.
func (s *PostgresStore) Since(ctx context.Context, cursor string) ([]chat.Message, error) {
	var after int64
	if cursor != "" {
		err := s.pool.QueryRow(ctx, `
			SELECT seq FROM chat_messages WHERE id = $1
		`, cursor).Scan(&after)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
		}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, body, html, created_at FROM (
			SELECT seq, id, body, html, created_at
			FROM chat_messages
			WHERE seq > $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`, after, s.capacity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	messages := make([]chat.Message, 0)
	for rows.Next() {
		var msg chat.Message
		if err := rows.Scan(&msg.ID, &msg.Body, &msg.HTML, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", chat.ErrStoreUnavailable, err)
	}

	return messages, nil
}

func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
