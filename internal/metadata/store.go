package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "modernc.org/sqlite"
)

// pragmas are executed once against each pool (read and write) when the
// store opens, each on whichever pooled connection runs it. journal_mode
// is recorded in the database file and holds for every connection; the
// other settings are per-connection, so connections a pool opens later
// run with SQLite's defaults for them. SQLite's single-writer model means a second write pragma (busy_timeout)
// also bounds how long a reader waits behind a writer holding the WAL.
var pragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA synchronous = NORMAL",
	"PRAGMA cache_size = -65536",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA busy_timeout = 30000",
}

// Store is the metadata store (C1): durable CRUD over dataset
// registrations, preferences, credentials, configuration, audit events,
// and categorization rules. It owns two pools against the same SQLite
// file — a single-connection write pool (SQLite allows one writer at a
// time) and a read pool sized to runtime.NumCPU(), mirroring the
// teacher's configureConnectionPool shape but split for SQLite's
// single-writer model instead of DuckDB's MVCC.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB

	datasetMgr       *datasetManager
	configMgr        *configurationManager
	userMgr          *userManager
	auditMgr         *auditManager
	categorizeMgr    *categorizationManager
	jobMgr           *jobManager
}

// New opens (creating if necessary) the metadata database at path,
// applies pragmas, bootstraps the schema, and seeds default rows.
func New(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create metadata directory %s: %w", dir, err)
		}
	}

	dsn := path
	writeDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open metadata write connection: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	writeDB.SetMaxIdleConns(1)
	writeDB.SetConnMaxLifetime(time.Hour)

	readDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("open metadata read connection: %w", err)
	}
	readDB.SetMaxOpenConns(runtime.NumCPU())
	readDB.SetMaxIdleConns(2)
	readDB.SetConnMaxLifetime(time.Hour)
	readDB.SetConnMaxIdleTime(5 * time.Minute)

	for _, db := range []*sql.DB{writeDB, readDB} {
		for _, p := range pragmas {
			if _, err := db.ExecContext(ctx, p); err != nil {
				writeDB.Close()
				readDB.Close()
				return nil, fmt.Errorf("apply pragma %q: %w", p, err)
			}
		}
	}

	s := &Store{writeDB: writeDB, readDB: readDB}
	s.datasetMgr = &datasetManager{s: s}
	s.configMgr = &configurationManager{s: s}
	s.userMgr = &userManager{s: s}
	s.auditMgr = &auditManager{s: s}
	s.categorizeMgr = &categorizationManager{s: s}
	s.jobMgr = &jobManager{s: s}

	if err := s.bootstrap(ctx); err != nil {
		writeDB.Close()
		readDB.Close()
		return nil, fmt.Errorf("bootstrap metadata schema: %w", err)
	}

	return s, nil
}

// Close closes both connection pools.
func (s *Store) Close() error {
	werr := s.writeDB.Close()
	rerr := s.readDB.Close()
	if werr != nil {
		return werr
	}
	return rerr
}

// Ping checks both pools are reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.writeDB.PingContext(ctx); err != nil {
		return fmt.Errorf("write pool: %w", err)
	}
	return s.readDB.PingContext(ctx)
}

// Datasets returns the dataset registry manager.
func (s *Store) Datasets() *datasetManager { return s.datasetMgr }

// Configuration returns the system configuration manager.
func (s *Store) Configuration() *configurationManager { return s.configMgr }

// Users returns the user preference / API credential manager.
func (s *Store) Users() *userManager { return s.userMgr }

// Audit returns the audit log manager.
func (s *Store) Audit() *auditManager { return s.auditMgr }

// Categorization returns the categorization rule manager.
func (s *Store) Categorization() *categorizationManager { return s.categorizeMgr }

func (s *Store) categorization() *categorizationManager { return s.categorizeMgr }

// Jobs returns the batch-run history manager.
func (s *Store) Jobs() *jobManager { return s.jobMgr }

// WithTx runs fn inside a metadata transaction on the write connection,
// committing on success and rolling back on any error or panic — the
// scoped transaction context required by the repository facade's
// transaction() operation.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
		if err != nil {
			tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(tx)
	return err
}
