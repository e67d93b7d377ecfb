package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roman-kulish/ifu-extract/internal/fiber"
)

// maxBatchVariables keeps batched statements under SQLite's host parameter
// limit.
const maxBatchVariables = 30000

// SqliteStore is a fiber.Provider and fiber.TargetCatalog backed by a SQLite
// database. Reads and writes use separate connection pools so a catalog can
// be served read-only while it is being loaded.
type SqliteStore struct {
	dbPath string

	writeDB     *sql.DB
	writeDBOnce sync.Once
	writeDBErr  error

	readDB     *sql.DB
	readDBOnce sync.Once
	readDBErr  error

	closeOnce sync.Once
	closeErr  error
}

var (
	_ fiber.Provider      = (*SqliteStore)(nil)
	_ fiber.TargetCatalog = (*SqliteStore)(nil)
)

// NewSqliteStore creates a store for the database at dbPath. Connections are
// opened lazily; the schema is created on the first write.
func NewSqliteStore(dbPath string) *SqliteStore {
	return &SqliteStore{dbPath: dbPath}
}

func runSQLCommand(db *sql.DB, sql string) error {
	_, err := db.Exec(sql)
	return err
}

func (s *SqliteStore) getWriteDB() (*sql.DB, error) {
	s.writeDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "_journal_mode=WAL&_synchronous=NORMAL"))
		if err != nil {
			s.writeDBErr = fmt.Errorf("opening write connection: %w", err)
			return
		}

		if err = runSQLCommand(db, schemaSQL); err != nil {
			_ = db.Close()
			s.writeDBErr = fmt.Errorf("initializing schema: %w", err)
			return
		}

		s.writeDB = db
	})

	return s.writeDB, s.writeDBErr
}

func (s *SqliteStore) getReadDB() (*sql.DB, error) {
	s.readDBOnce.Do(func() {
		db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", s.dbPath, "mode=ro"))
		if err != nil {
			s.readDBErr = fmt.Errorf("opening read connection: %w", err)
			return
		}
		s.readDB = db
	})

	return s.readDB, s.readDBErr
}

// QueryRegion returns, in id order, the ids of the fibers within radius
// degrees of c. The index narrows the scan to a bounding box; the exact
// angular cut is applied to its rows.
func (s *SqliteStore) QueryRegion(ctx context.Context, c fiber.Coordinate, radius float64) (ids []int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	decLo, decHi, raLo, raHi := raDecBox(c, radius)

	rows, err := db.QueryContext(ctx, selectRegionSQL, decLo, decHi, raLo, raHi)
	if err != nil {
		return nil, fmt.Errorf("querying region: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var (
			id int64
			p  fiber.Coordinate
		)
		if err = rows.Scan(&id, &p.RA, &p.Dec); err != nil {
			return nil, fmt.Errorf("scanning fiber: %w", err)
		}
		if c.Separation(p) <= radius {
			ids = append(ids, id)
		}
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating fibers: %w", err)
	}
	return ids, nil
}

// ReadFibers returns the fibers for ids in the order of ids.
func (s *SqliteStore) ReadFibers(ctx context.Context, ids []int64) (fiber.Set, error) {
	if len(ids) == 0 {
		return fiber.Set{}, nil
	}

	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	byID := make(map[int64]fiber.Sample, len(ids))
	for start := 0; start < len(ids); start += maxBatchVariables {
		end := min(start+maxBatchVariables, len(ids))
		if err = s.readFiberBatch(ctx, db, ids[start:end], byID); err != nil {
			return nil, err
		}
	}

	set := make(fiber.Set, len(ids))
	for i, id := range ids {
		f, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("fiber %d does not exist", id)
		}
		set[i] = f
	}
	return set, nil
}

func (s *SqliteStore) readFiberBatch(ctx context.Context, db *sql.DB, ids []int64, out map[int64]fiber.Sample) (err error) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(selectFibersSQL, strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", "))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying fibers: %w", err)
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var d fiberData
		if err = rows.Scan(&d.ID, &d.IFUX, &d.IFUY, &d.RA, &d.Dec, &d.ExpNum,
			&d.Flux, &d.Error, &d.FiberToFiber, &d.Amp2Amp); err != nil {
			return fmt.Errorf("scanning fiber: %w", err)
		}

		var f fiber.Sample
		if f, err = d.toSample(); err != nil {
			return err
		}
		out[d.ID] = f
	}
	if err = rows.Err(); err != nil {
		return fmt.Errorf("iterating fibers: %w", err)
	}
	return nil
}

// NumFibers returns the number of fibers in the catalog.
func (s *SqliteStore) NumFibers(ctx context.Context) (n int64, err error) {
	db, err := s.getReadDB()
	if err != nil {
		return 0, fmt.Errorf("getting read connection: %w", err)
	}
	if err = db.QueryRowContext(ctx, countFibersSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting fibers: %w", err)
	}
	return n, nil
}

// Targets reads the whole target catalog in catalog order.
func (s *SqliteStore) Targets(ctx context.Context) (targets []fiber.Target, err error) {
	r, err := s.TargetReader(ctx)
	if err != nil {
		return nil, err
	}
	defer closeWithError(r, &err)

	for r.Next() {
		targets = append(targets, r.Current())
	}
	if err = r.Error(); err != nil {
		return nil, err
	}
	return targets, nil
}

// TargetReader returns an iterator over the target catalog.
func (s *SqliteStore) TargetReader(ctx context.Context) (*TargetReader, error) {
	db, err := s.getReadDB()
	if err != nil {
		return nil, fmt.Errorf("getting read connection: %w", err)
	}

	r := &TargetReader{db: db}
	if err = r.init(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// StoreFibers inserts fibers observed in the given shot and returns their ids
// in input order.
func (s *SqliteStore) StoreFibers(ctx context.Context, shot string, fibers fiber.Set) (ids []int64, err error) {
	if len(fibers) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return nil, fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	const (
		columns           = 10
		valuesPlaceholder = "(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	)

	ids = make([]int64, 0, len(fibers))
	perBatch := maxBatchVariables / columns

	for start := 0; start < len(fibers); start += perBatch {
		batch := fibers[start:min(start+perBatch, len(fibers))]
		values := make([]any, 0, len(batch)*columns)

		var sb strings.Builder
		sb.WriteString(insertFiberSQL)

		for i, f := range batch {
			data := toFiberData(shot, f)
			values = append(values,
				data.Shot,
				data.IFUX,
				data.IFUY,
				data.RA,
				data.Dec,
				data.ExpNum,
				data.Flux,
				data.Error,
				data.FiberToFiber,
				data.Amp2Amp,
			)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}
		sb.WriteString(" RETURNING id")

		if err = insertReturning(ctx, tx, sb.String(), values, &ids); err != nil {
			return nil, fmt.Errorf("batch inserting fibers: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return ids, nil
}

// StoreTargets appends targets to the catalog. Target ids are assigned by
// the database; the ids of the input are ignored.
func (s *SqliteStore) StoreTargets(ctx context.Context, targets []fiber.Target) (err error) {
	if len(targets) == 0 {
		return
	}

	db, err := s.getWriteDB()
	if err != nil {
		return fmt.Errorf("getting write connection: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer rollbackWithError(tx, &err)

	const (
		columns           = 4
		valuesPlaceholder = "(?, ?, ?, ?)"
	)
	perBatch := maxBatchVariables / columns

	for start := 0; start < len(targets); start += perBatch {
		batch := targets[start:min(start+perBatch, len(targets))]
		values := make([]any, 0, len(batch)*columns)

		var sb strings.Builder
		sb.WriteString(insertTargetSQL)

		for i, t := range batch {
			values = append(values, t.StarID, t.Coordinate.RA, t.Coordinate.Dec, t.Magnitude)

			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(valuesPlaceholder)
		}

		if _, err = tx.ExecContext(ctx, sb.String(), values...); err != nil {
			return fmt.Errorf("batch inserting targets: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func insertReturning(ctx context.Context, tx *sql.Tx, query string, values []any, ids *[]int64) (err error) {
	rows, err := tx.QueryContext(ctx, query, values...)
	if err != nil {
		return err
	}
	defer closeWithError(rows, &err)

	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return err
		}
		*ids = append(*ids, id)
	}
	return rows.Err()
}

func (s *SqliteStore) Close() error {
	s.closeOnce.Do(func() {
		var writeErr, readErr error

		if s.writeDB != nil {
			writeErr = s.writeDB.Close()
			s.writeDB = nil
		}

		if s.readDB != nil {
			readErr = s.readDB.Close()
			s.readDB = nil
		}

		s.closeErr = errors.Join(writeErr, readErr)
	})

	return s.closeErr
}
