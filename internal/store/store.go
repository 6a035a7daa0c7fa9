package store

import (
	"context"
	"errors"
	"time"

	"github.com/example/order-pipeline/internal/domain"
	"github.com/example/order-pipeline/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrDuplicate is returned when a unique constraint rejects an insert.
var ErrDuplicate = errors.New("store: duplicate")

// Store is the Command Store: users, order commands and order events in Postgres.
type Store struct{ DB *pgxpool.Pool }

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const commandColumns = `order_id::text, user_id::text, symbol, side, type, quantity, price, status, created_at, COALESCE(venue_order_id, 0), executed_quantity`

func scanCommand(row pgx.Row) (models.OrderCommand, error) {
	var c models.OrderCommand
	var side, typ, status string
	if err := row.Scan(&c.OrderID, &c.UserID, &c.Symbol, &side, &typ, &c.Quantity, &c.Price, &status, &c.Timestamp, &c.VenueOrderID, &c.Executed); err != nil {
		return models.OrderCommand{}, err
	}
	c.Side = domain.Side(side)
	c.Type = domain.OrderType(typ)
	c.Status = domain.Status(status)
	return c, nil
}

func collectCommands(rows pgx.Rows) ([]models.OrderCommand, error) {
	return pgx.CollectRows(rows, func(r pgx.CollectableRow) (models.OrderCommand, error) {
		return scanCommand(r)
	})
}

func (s *Store) CreateCommand(ctx context.Context, c models.OrderCommand) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO order_commands (order_id, user_id, symbol, side, type, quantity, price, status, created_at)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, $8, $9)
	`, c.OrderID, c.UserID, c.Symbol, string(c.Side), string(c.Type), c.Quantity, c.Price, string(domain.StatusPending), c.Timestamp)
	return err
}

// ClaimCommand marks a PENDING command as attempted and returns it. ok is false when
// the command is unknown, already attempted or already settled.
func (s *Store) ClaimCommand(ctx context.Context, orderID string) (models.OrderCommand, bool, error) {
	row := s.DB.QueryRow(ctx, `
		UPDATE order_commands
		   SET attempted_at = now(), updated_at = now()
		 WHERE order_id = $1::uuid AND attempted_at IS NULL AND status = 'PENDING'
		RETURNING `+commandColumns, orderID)
	c, err := scanCommand(row)
	if IsNotFound(err) {
		return models.OrderCommand{}, false, nil
	}
	if err != nil {
		return models.OrderCommand{}, false, err
	}
	return c, true, nil
}

// Settle records ev and moves its command to ev.Status in one transaction.
// A zero venueOrderID keeps whatever id is already recorded and the executed
// quantity never decreases. pgx.ErrNoRows means the command is unknown or already
// FILLED or REJECTED; nothing is written in that case.
func (s *Store) Settle(ctx context.Context, ev models.OrderEvent, venueOrderID int64, executed float64) error {
	return pgx.BeginFunc(ctx, s.DB, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE order_commands
			   SET status = $2,
			       venue_order_id = COALESCE(NULLIF($3::bigint, 0), venue_order_id),
			       executed_quantity = GREATEST(executed_quantity, $4),
			       updated_at = now()
			 WHERE order_id = $1::uuid AND status <> 'FILLED' AND status <> 'REJECTED'
		`, ev.OrderID, string(ev.Status), venueOrderID, executed)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO order_events (order_id, user_id, status, symbol, side, quantity, price, ts)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, ev.OrderID, ev.UserID, string(ev.Status), ev.Symbol, string(ev.Side), ev.Quantity, ev.Price, ev.Timestamp)
		return err
	})
}

func (s *Store) GetCommand(ctx context.Context, orderID string) (models.OrderCommand, error) {
	return scanCommand(s.DB.QueryRow(ctx, `SELECT `+commandColumns+` FROM order_commands WHERE order_id = $1::uuid`, orderID))
}

func (s *Store) ListCommands(ctx context.Context, userID string, limit int) ([]models.OrderCommand, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+commandColumns+` FROM order_commands WHERE user_id = $1::uuid ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectCommands(rows)
}

// ListUnclaimed returns PENDING commands no worker has attempted that were created before olderThan.
func (s *Store) ListUnclaimed(ctx context.Context, olderThan time.Time, limit int) ([]models.OrderCommand, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+commandColumns+` FROM order_commands
		 WHERE status = 'PENDING' AND attempted_at IS NULL AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, err
	}
	return collectCommands(rows)
}

// ListOpenCommands returns commands accepted by the venue that have not reached FILLED or REJECTED.
func (s *Store) ListOpenCommands(ctx context.Context, limit int) ([]models.OrderCommand, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+commandColumns+` FROM order_commands
		 WHERE status IN ('PENDING', 'PARTIALLY_FILLED') AND venue_order_id IS NOT NULL
		 ORDER BY updated_at
		 LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return collectCommands(rows)
}

func (s *Store) CreateUser(ctx context.Context, u models.User) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, api_key, secret_key, created_at)
		VALUES ($1::uuid, $2, $3, $4, $5, $6)
	`, u.ID, u.Email, u.PasswordHash, u.APIKey, u.SecretKey, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicate
	}
	return err
}

const userColumns = `id::text, email, password_hash, api_key, secret_key, created_at`

func scanUser(row pgx.Row) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.APIKey, &u.SecretKey, &u.CreatedAt)
	return u, err
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

func (s *Store) FindUserByID(ctx context.Context, id string) (models.User, error) {
	return scanUser(s.DB.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, id))
}

func IsNotFound(err error) bool { return errors.Is(err, pgx.ErrNoRows) }
