package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roman-kulish/ifu-extract/internal/fiber"
)

// ErrReaderClosed is returned by Error after reading from a closed reader.
var ErrReaderClosed = errors.New("reader is closed")

// TargetReader iterates over the target catalog in catalog order.
type TargetReader struct {
	db   *sql.DB
	stmt *sql.Stmt
	rows *sql.Rows

	current fiber.Target
	err     error
	closed  bool
}

func (tr *TargetReader) init(ctx context.Context) error {
	steps := []struct {
		msg string
		fn  func(context.Context) error
	}{
		{msg: "preparing statement", fn: tr.prepare},
		{msg: "querying targets", fn: tr.query},
	}

	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			_ = tr.Close()
			return fmt.Errorf("%s: %w", s.msg, err)
		}
	}
	return nil
}

func (tr *TargetReader) prepare(ctx context.Context) (err error) {
	tr.stmt, err = tr.db.PrepareContext(ctx, selectTargetsSQL)
	return
}

func (tr *TargetReader) query(ctx context.Context) (err error) {
	tr.rows, err = tr.stmt.QueryContext(ctx)
	return
}

// Next advances to the next target. It returns false at the end of the
// catalog or on error; check Error to tell them apart.
func (tr *TargetReader) Next() bool {
	if tr.closed {
		tr.err = ErrReaderClosed
		return false
	}
	if tr.err != nil || !tr.rows.Next() {
		if tr.err == nil {
			tr.err = tr.rows.Err()
		}
		return false
	}

	var d targetData
	if err := tr.rows.Scan(&d.ID, &d.StarID, &d.RA, &d.Dec, &d.GMag); err != nil {
		tr.err = fmt.Errorf("scanning target: %w", err)
		return false
	}
	tr.current = d.toTarget()
	return true
}

// Current returns the target read by the last successful call to Next.
func (tr *TargetReader) Current() fiber.Target {
	return tr.current
}

func (tr *TargetReader) Error() error {
	return tr.err
}

func (tr *TargetReader) Close() error {
	if tr.closed {
		return nil
	}
	tr.closed = true

	var rowsErr, stmtErr error
	if tr.rows != nil {
		rowsErr = tr.rows.Close()
	}
	if tr.stmt != nil {
		stmtErr = tr.stmt.Close()
	}
	return errors.Join(rowsErr, stmtErr)
}
