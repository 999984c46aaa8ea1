package infra_history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/fastvote/client-go/internal/model"
)

// The list is a convenience, not an archive. Old entries fall off.
const maxRecords = 30

const schema = `
CREATE TABLE IF NOT EXISTS my_polls (
	room_uuid      TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	tags           TEXT NOT NULL DEFAULT '[]',
	has_password   INTEGER NOT NULL DEFAULT 0,
	allow_multiple INTEGER NOT NULL DEFAULT 0,
	total_votes    INTEGER NOT NULL DEFAULT 0,
	share_token    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMP NOT NULL,
	expires_at     TIMESTAMP
);`

// Driver keeps the local "my polls" list in a sqlite file under the state
// dir. Everything here is device-local; the backend is only consulted to
// drop entries whose room no longer exists.
type Driver struct {
	db     *sqlx.DB
	logger *slog.Logger
}

type DriverOption func(*Driver)

func WithLogger(logger *slog.Logger) DriverOption {
	return func(d *Driver) {
		d.logger = logger
	}
}

func Open(stateDir string, opts ...DriverOption) (*Driver, error) {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return nil, fmt.Errorf("%w : %w", model.ErrInternal, err)
	}

	db, err := sqlx.Connect("sqlite", filepath.Join(stateDir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("%w : %w", model.ErrInternal, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w : %w", model.ErrInternal, err)
	}

	d := &Driver{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

func (d *Driver) Close() error {
	return d.db.Close()
}

// Add upserts a record and trims the list back to the cap, newest first.
func (d *Driver) Add(ctx context.Context, rec Record) error {
	dto := fromDomain(rec)

	query := `
		INSERT INTO my_polls
			(room_uuid, title, tags, has_password, allow_multiple, total_votes, share_token, created_at, expires_at)
		VALUES
			(:room_uuid, :title, :tags, :has_password, :allow_multiple, :total_votes, :share_token, :created_at, :expires_at)
		ON CONFLICT(room_uuid) DO UPDATE SET
			title = excluded.title,
			tags = excluded.tags,
			total_votes = excluded.total_votes,
			share_token = excluded.share_token,
			expires_at = excluded.expires_at
	`
	if _, err := d.db.NamedExecContext(ctx, query, dto); err != nil {
		return fmt.Errorf("%w : %w", model.ErrInternal, err)
	}

	trim := `
		DELETE FROM my_polls WHERE room_uuid NOT IN (
			SELECT room_uuid FROM my_polls ORDER BY created_at DESC LIMIT ?
		)
	`
	if _, err := d.db.ExecContext(ctx, trim, maxRecords); err != nil {
		return fmt.Errorf("%w : %w", model.ErrInternal, err)
	}
	return nil
}

// List returns the surviving records, newest first. Expired rooms are
// dropped on the way out.
func (d *Driver) List(ctx context.Context) ([]Record, error) {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM my_polls WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("%w : %w", model.ErrInternal, err)
	}

	var dtos []recordDB
	query := `SELECT * FROM my_polls ORDER BY created_at DESC LIMIT ?`
	if err := d.db.SelectContext(ctx, &dtos, query, maxRecords); err != nil {
		return nil, fmt.Errorf("%w : %w", model.ErrInternal, err)
	}

	records := make([]Record, 0, len(dtos))
	for i := range dtos {
		records = append(records, dtos[i].ToDomain())
	}
	return records, nil
}

func (d *Driver) Remove(ctx context.Context, id model.RoomID) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM my_polls WHERE room_uuid = ?`, string(id)); err != nil {
		return fmt.Errorf("%w : %w", model.ErrInternal, err)
	}
	return nil
}

// PruneMissing checks every record against the backend and drops the ones
// whose room is gone. Lookup failures other than not-found keep the record;
// the list must stay usable offline.
func (d *Driver) PruneMissing(ctx context.Context, lookup func(context.Context, model.RoomID) error) error {
	records, err := d.List(ctx)
	if err != nil {
		return err
	}

	for _, rec := range records {
		err := lookup(ctx, rec.RoomID)
		switch {
		case err == nil:
			continue
		case errors.Is(err, model.ErrNotFound):
			if err := d.Remove(ctx, rec.RoomID); err != nil {
				return err
			}
		default:
			d.logger.Warn("existence check skipped",
				slog.String("room_id", string(rec.RoomID)), slog.String("error", err.Error()))
		}
	}
	return nil
}
