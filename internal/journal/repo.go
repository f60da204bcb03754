package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/starford/vaultgate/internal/history"
)

const lastSeqKey = "last_seq"

// Append stores e, advances the persisted sequence high-water mark and
// prunes rows beyond the retention bound, all in one transaction.
func (db *DB) Append(ctx context.Context, e history.Entry) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	md, _ := json.Marshal(e.Metadata)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (seq, id, op, path, pre_image, new_content, metadata, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO UPDATE SET
			id          = excluded.id,
			op          = excluded.op,
			path        = excluded.path,
			pre_image   = excluded.pre_image,
			new_content = excluded.new_content,
			metadata    = excluded.metadata,
			status      = excluded.status,
			created_at  = excluded.created_at
	`, int64(e.Seq), e.ID, string(e.Op), e.Path, nullString(e.PreImage), nullString(e.NewContent),
		string(md), string(e.Status), e.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("journal: insert entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = MAX(value, excluded.value)
	`, lastSeqKey, int64(e.Seq))
	if err != nil {
		return fmt.Errorf("journal: update last seq: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		DELETE FROM entries WHERE seq NOT IN (SELECT seq FROM entries ORDER BY seq DESC LIMIT ?)
	`, db.keep)
	if err != nil {
		return fmt.Errorf("journal: prune: %w", err)
	}

	return tx.Commit()
}

// SetStatus records the outcome of an entry's push.
func (db *DB) SetStatus(ctx context.Context, seq uint64, status history.Status) error {
	if _, err := db.conn.ExecContext(ctx, `UPDATE entries SET status = ? WHERE seq = ?`, string(status), int64(seq)); err != nil {
		return fmt.Errorf("journal: set status: %w", err)
	}
	return nil
}

// Clear removes every entry but keeps the sequence high-water mark.
func (db *DB) Clear(ctx context.Context) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM entries`); err != nil {
		return fmt.Errorf("journal: clear: %w", err)
	}
	return nil
}

// LastSeq returns the highest sequence number ever appended.
func (db *DB) LastSeq(ctx context.Context) (uint64, error) {
	var v int64
	err := db.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, lastSeqKey).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("journal: last seq: %w", err)
	}
	return uint64(v), nil
}

// Recent returns up to n of the newest entries, oldest first.
func (db *DB) Recent(ctx context.Context, n int) ([]history.Entry, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT seq, id, op, path, pre_image, new_content, metadata, status, created_at
		FROM (SELECT * FROM entries ORDER BY seq DESC LIMIT ?)
		ORDER BY seq ASC
	`, n)
	if err != nil {
		return nil, fmt.Errorf("journal: recent: %w", err)
	}
	defer rows.Close()

	var out []history.Entry
	for rows.Next() {
		var (
			e         history.Entry
			seq       int64
			op        string
			status    string
			pre, next sql.NullString
			md        string
			created   time.Time
		)
		if err := rows.Scan(&seq, &e.ID, &op, &e.Path, &pre, &next, &md, &status, &created); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Seq = uint64(seq)
		e.Op = history.Op(op)
		e.Status = history.Status(status)
		e.Timestamp = created.UTC()
		if pre.Valid {
			e.PreImage = history.StringPtr(pre.String)
		}
		if next.Valid {
			e.NewContent = history.StringPtr(next.String)
		}
		if md != "" && md != "null" {
			_ = json.Unmarshal([]byte(md), &e.Metadata)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Load restores the newest entries into ring and carries the sequence
// counter forward so numbers are never reused across restarts.
func (db *DB) Load(ctx context.Context, ring *history.Ring) error {
	entries, err := db.Recent(ctx, ring.Cap())
	if err != nil {
		return err
	}
	last, err := db.LastSeq(ctx)
	if err != nil {
		return err
	}
	ring.Restore(entries, last)
	return nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
