package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/vadimbarashkov/tinylink/internal/entity"
)

const uniqueViolationErrCode = "23505"

func isUniqueViolationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == uniqueViolationErrCode
}

func isUnavailableError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		pgconn.Timeout(err) {
		return true
	}

	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// wrapError attaches op and maps driver failures onto the entity error taxonomy.
func wrapError(op, msg string, err error) error {
	if isUnavailableError(err) {
		return fmt.Errorf("%s: %s: %w: %w", op, msg, entity.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %s: %w", op, msg, err)
}

const linkColumns = `code, target_url, total_clicks, last_clicked, created_at`

type linkDB struct {
	Code        string       `db:"code"`
	TargetURL   string       `db:"target_url"`
	TotalClicks int64        `db:"total_clicks"`
	LastClicked sql.NullTime `db:"last_clicked"`
	CreatedAt   time.Time    `db:"created_at"`
}

func (l *linkDB) toEntity() *entity.Link {
	link := &entity.Link{
		Code:        l.Code,
		TargetURL:   l.TargetURL,
		TotalClicks: l.TotalClicks,
		CreatedAt:   l.CreatedAt,
	}

	if l.LastClicked.Valid {
		t := l.LastClicked.Time
		link.LastClicked = &t
	}

	return link
}

type LinkRepository struct {
	db *sqlx.DB
}

func NewLinkRepository(db *sqlx.DB) *LinkRepository {
	return &LinkRepository{db: db}
}

func (r *LinkRepository) ExistsByCode(ctx context.Context, code string) (bool, error) {
	const op = "adapter.repository.postgres.LinkRepository.ExistsByCode"
	const query = `SELECT EXISTS(SELECT 1 FROM links WHERE code = $1)`

	var exists bool

	if err := r.db.GetContext(ctx, &exists, query, code); err != nil {
		return false, wrapError(op, "failed to query links table", err)
	}

	return exists, nil
}

func (r *LinkRepository) Insert(ctx context.Context, code, targetURL string) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.Insert"
	const query = `INSERT INTO links(code, target_url) VALUES ($1, $2) RETURNING ` + linkColumns

	var link linkDB

	if err := r.db.GetContext(ctx, &link, query, code, targetURL); err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrDuplicateKey)
		}

		return nil, wrapError(op, "failed to insert into links table", err)
	}

	return link.toEntity(), nil
}

func (r *LinkRepository) SelectAll(ctx context.Context) ([]entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.SelectAll"
	const query = `SELECT ` + linkColumns + ` FROM links ORDER BY created_at DESC, code`

	var rows []linkDB

	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, wrapError(op, "failed to select from links table", err)
	}

	links := make([]entity.Link, 0, len(rows))
	for i := range rows {
		links = append(links, *rows[i].toEntity())
	}

	return links, nil
}

func (r *LinkRepository) SelectByCode(ctx context.Context, code string) (*entity.Link, error) {
	const op = "adapter.repository.postgres.LinkRepository.SelectByCode"
	const query = `SELECT ` + linkColumns + ` FROM links WHERE code = $1`

	var link linkDB

	if err := r.db.GetContext(ctx, &link, query, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
		}

		return nil, wrapError(op, "failed to get row from links table", err)
	}

	return link.toEntity(), nil
}

func (r *LinkRepository) DeleteByCode(ctx context.Context, code string) error {
	const op = "adapter.repository.postgres.LinkRepository.DeleteByCode"
	const query = `DELETE FROM links WHERE code = $1`

	if _, err := r.db.ExecContext(ctx, query, code); err != nil {
		return wrapError(op, "failed to delete from links table", err)
	}

	return nil
}

// IncrementClicks bumps the counter inside the database so concurrent
// redirects of the same code never overwrite each other.
func (r *LinkRepository) IncrementClicks(ctx context.Context, code string) error {
	const op = "adapter.repository.postgres.LinkRepository.IncrementClicks"
	const query = `UPDATE links SET total_clicks = total_clicks + 1, last_clicked = NOW() WHERE code = $1`

	res, err := r.db.ExecContext(ctx, query, code)
	if err != nil {
		return wrapError(op, "failed to update links table row", err)
	}

	rowsAffected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get number of affected rows: %w", op, err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("%s: %w", op, entity.ErrLinkNotFound)
	}

	return nil
}

func (r *LinkRepository) Ping(ctx context.Context) error {
	const op = "adapter.repository.postgres.LinkRepository.Ping"

	var ok int

	if err := r.db.GetContext(ctx, &ok, `SELECT 1`); err != nil {
		return wrapError(op, "liveness query failed", err)
	}

	if ok != 1 {
		return fmt.Errorf("%s: unexpected liveness result %d", op, ok)
	}

	return nil
}
