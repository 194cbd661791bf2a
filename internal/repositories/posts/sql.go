package posts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/postkeeper/internal/common"
	"github.com/dmitrijs2005/postkeeper/internal/dbx"
	"github.com/dmitrijs2005/postkeeper/internal/models"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const postColumns = `id, text, media, poll, created_at, status, approval_id, message_ts, reply_target_id`

// SQLRepository stores records in a posts table. Every write runs inside a
// transaction that re-reads the row it changes.
type SQLRepository struct {
	db      *sql.DB
	dialect dbx.Dialect
}

// OpenSQLRepository opens dsn with the dialect's driver and applies migrations.
func OpenSQLRepository(ctx context.Context, dialect dbx.Dialect, dsn string) (*SQLRepository, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, common.Collaborator("store", fmt.Errorf("db open: %w", err))
	}
	if dialect == dbx.DialectSQLite {
		// a single writer connection keeps sqlite from returning SQLITE_BUSY
		db.SetMaxOpenConns(1)
	}
	if err := RunMigrations(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, common.Collaborator("store", fmt.Errorf("migrations: %w", err))
	}
	return NewSQLRepository(db, dialect), nil
}

// NewSQLRepository wraps an already migrated database.
func NewSQLRepository(db *sql.DB, dialect dbx.Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

func (r *SQLRepository) q(query string) string {
	return r.dialect.Rebind(query)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func encodeJSON(v any, empty bool) (sql.NullString, error) {
	if empty {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (r *SQLRepository) scanPost(s rowScanner) (*models.Post, error) {
	var (
		p                                     models.Post
		media, poll                           sql.NullString
		createdAt                             any
		status                                string
		approvalID, messageTS, replyTargetID sql.NullString
	)
	if err := s.Scan(&p.ID, &p.Text, &media, &poll, &createdAt, &status, &approvalID, &messageTS, &replyTargetID); err != nil {
		return nil, err
	}

	if media.Valid && media.String != "" {
		if err := json.Unmarshal([]byte(media.String), &p.Media); err != nil {
			return nil, fmt.Errorf("%w: post %s media: %v", common.ErrMalformedPayload, p.ID, err)
		}
	}
	if poll.Valid && poll.String != "" {
		p.Poll = &models.Poll{}
		if err := json.Unmarshal([]byte(poll.String), p.Poll); err != nil {
			return nil, fmt.Errorf("%w: post %s poll: %v", common.ErrMalformedPayload, p.ID, err)
		}
	}
	ts, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("%w: post %s created_at: %v", common.ErrMalformedPayload, p.ID, err)
	}
	p.CreatedAt = ts
	p.Status = models.Status(status)
	p.ApprovalID = approvalID.String
	p.MessageTS = messageTS.String
	p.ReplyTargetID = replyTargetID.String
	return &p, nil
}

func parseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return time.Parse(time.RFC3339Nano, t)
	case []byte:
		return time.Parse(time.RFC3339Nano, string(t))
	}
	return time.Time{}, fmt.Errorf("unsupported time value %T", v)
}

func (r *SQLRepository) createdAtArg(t time.Time) any {
	if r.dialect == dbx.DialectPostgres {
		return t.UTC()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func (r *SQLRepository) get(ctx context.Context, db dbx.DBTX, column, key string) (*models.Post, error) {
	row := db.QueryRowContext(ctx, r.q(`SELECT `+postColumns+` FROM posts WHERE `+column+` = ?`), key)
	p, err := r.scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(column, key)
	}
	if err != nil {
		if errors.Is(err, common.ErrMalformedPayload) {
			return nil, err
		}
		return nil, common.Collaborator("store", fmt.Errorf("select post: %w", err))
	}
	return p, nil
}

func (r *SQLRepository) approvalTaken(ctx context.Context, db dbx.DBTX, approvalID, exceptID string) (bool, error) {
	if approvalID == "" {
		return false, nil
	}
	var n int
	err := db.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM posts WHERE approval_id = ? AND id <> ?`), approvalID, exceptID).Scan(&n)
	if err != nil {
		return false, common.Collaborator("store", fmt.Errorf("check approval id: %w", err))
	}
	return n > 0, nil
}

func (r *SQLRepository) Append(ctx context.Context, p *models.Post) error {
	if err := p.Validate(); err != nil {
		return err
	}
	media, err := encodeJSON(p.Media, len(p.Media) == 0)
	if err != nil {
		return fmt.Errorf("encode media: %w", err)
	}
	poll, err := encodeJSON(p.Poll, p.Poll == nil)
	if err != nil {
		return fmt.Errorf("encode poll: %w", err)
	}

	return r.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var n int
		if err := tx.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM posts WHERE id = ?`), p.ID).Scan(&n); err != nil {
			return common.Collaborator("store", fmt.Errorf("check id: %w", err))
		}
		if n > 0 {
			return fmt.Errorf("post %s: %w", p.ID, common.ErrDuplicateID)
		}
		taken, err := r.approvalTaken(ctx, tx, p.ApprovalID, p.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("approval %s: %w", p.ApprovalID, common.ErrDuplicateID)
		}

		_, err = tx.ExecContext(ctx, r.q(`INSERT INTO posts (`+postColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			p.ID, p.Text, media, poll, r.createdAtArg(p.CreatedAt), string(p.Status),
			nullable(p.ApprovalID), nullable(p.MessageTS), nullable(p.ReplyTargetID))
		if err != nil {
			return common.Collaborator("store", fmt.Errorf("insert post: %w", err))
		}
		return nil
	})
}

// writeStatus persists status, approval id and message ts of p.
func (r *SQLRepository) writeStatus(ctx context.Context, tx dbx.DBTX, p *models.Post, expected models.Status) error {
	res, err := tx.ExecContext(ctx, r.q(`UPDATE posts SET status = ?, approval_id = ?, message_ts = ? WHERE id = ? AND status = ?`),
		string(p.Status), nullable(p.ApprovalID), nullable(p.MessageTS), p.ID, string(expected))
	if err != nil {
		return common.Collaborator("store", fmt.Errorf("update status: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.Collaborator("store", fmt.Errorf("rows affected: %w", err))
	}
	if n != 1 {
		current, err := r.currentStatus(ctx, tx, p.ID)
		if err != nil {
			return err
		}
		return &models.TransitionError{ID: p.ID, Current: current, To: p.Status}
	}
	return nil
}

// currentStatus re-reads the stored status after a conditional update
// matched no row.
func (r *SQLRepository) currentStatus(ctx context.Context, tx dbx.DBTX, id string) (models.Status, error) {
	var s string
	err := tx.QueryRowContext(ctx, r.q(`SELECT status FROM posts WHERE id = ?`), id).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return "", notFound("id", id)
	}
	if err != nil {
		return "", common.Collaborator("store", fmt.Errorf("select status: %w", err))
	}
	return models.ParseStatus(s)
}

func (r *SQLRepository) UpdateStatus(ctx context.Context, id string, status models.Status, upd models.StatusUpdate) error {
	return r.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		p, err := r.get(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		taken, err := r.approvalTaken(ctx, tx, upd.ApprovalID, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("approval %s: %w", upd.ApprovalID, common.ErrDuplicateID)
		}
		current := p.Status
		if err := applyStatus(p, status, upd); err != nil {
			return err
		}
		return r.writeStatus(ctx, tx, p, current)
	})
}

func (r *SQLRepository) Transition(ctx context.Context, id string, from []models.Status, to models.Status, upd models.StatusUpdate) (*models.Post, error) {
	var updated *models.Post
	err := r.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		p, err := r.get(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		taken, err := r.approvalTaken(ctx, tx, upd.ApprovalID, id)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("approval %s: %w", upd.ApprovalID, common.ErrDuplicateID)
		}
		current := p.Status
		if err := applyTransition(p, from, to, upd); err != nil {
			return err
		}
		if err := r.writeStatus(ctx, tx, p, current); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *SQLRepository) UpdateContent(ctx context.Context, id string, upd models.ContentUpdate) error {
	return r.withTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		p, err := r.get(ctx, tx, "id", id)
		if err != nil {
			return err
		}
		current := p.Status
		if err := applyContent(p, upd); err != nil {
			return err
		}
		media, err := encodeJSON(p.Media, len(p.Media) == 0)
		if err != nil {
			return fmt.Errorf("encode media: %w", err)
		}
		poll, err := encodeJSON(p.Poll, p.Poll == nil)
		if err != nil {
			return fmt.Errorf("encode poll: %w", err)
		}
		res, err := tx.ExecContext(ctx, r.q(`UPDATE posts SET text = ?, media = ?, poll = ? WHERE id = ? AND status = ?`),
			p.Text, media, poll, p.ID, string(current))
		if err != nil {
			return common.Collaborator("store", fmt.Errorf("update content: %w", err))
		}
		if n, err := res.RowsAffected(); err != nil || n != 1 {
			return fmt.Errorf("post %s changed concurrently: %w", id, common.ErrInvalidTransition)
		}
		return nil
	})
}

func (r *SQLRepository) FindByID(ctx context.Context, id string) (*models.Post, error) {
	return r.get(ctx, r.db, "id", id)
}

func (r *SQLRepository) FindByApprovalID(ctx context.Context, approvalID string) (*models.Post, error) {
	if approvalID == "" {
		return nil, notFound("approval_id", approvalID)
	}
	return r.get(ctx, r.db, "approval_id", approvalID)
}

func (r *SQLRepository) ListByStatus(ctx context.Context, status models.Status) ([]*models.Post, error) {
	rows, err := r.db.QueryContext(ctx, r.q(`SELECT `+postColumns+` FROM posts WHERE status = ? ORDER BY created_at`), string(status))
	if err != nil {
		return nil, common.Collaborator("store", fmt.Errorf("select posts: %w", err))
	}
	defer rows.Close()

	var result []*models.Post
	for rows.Next() {
		p, err := r.scanPost(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, common.Collaborator("store", err)
	}
	return result, nil
}

func (r *SQLRepository) withTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	err := dbx.WithTx(ctx, r.db, nil, fn)
	if err == nil {
		return nil
	}
	var ce *common.CollaboratorError
	if errors.As(err, &ce) || errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrDuplicateID) ||
		errors.Is(err, common.ErrInvalidTransition) || errors.Is(err, common.ErrMalformedPayload) {
		return err
	}
	return common.Collaborator("store", err)
}

func (r *SQLRepository) Close() error {
	return r.db.Close()
}
