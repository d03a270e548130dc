// Package history implements the swdb history store (spec §4.11): a
// single-file, schema-versioned sqlite database recording every
// transaction attempt and its per-item outcome, plus a reason cache fed
// back into the sack at fill time.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	dnf "github.com/rpm-software-management/libdnf-sub003"
	"github.com/rpm-software-management/libdnf-sub003/internal/sack"
)

// Entity names one of the three reason-carrying entity kinds (spec §4.11).
type Entity int

const (
	EntityRPMPackage Entity = iota
	EntityCompsGroup
	EntityCompsEnvironment
)

// Store is the history.sqlite-backed swdb (spec §6: "persisted state
// layout").
type Store struct {
	db *sql.DB

	reasonPkg map[nameArch]string
	reasonGrp map[string]string
	reasonEnv map[string]string
}

type nameArch struct {
	name string
	arch string
}

// Open opens (creating and migrating as needed) the history database at
// <statedir>/history.sqlite.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, dnf.Wrap(err, "History", dnf.KindCannotWriteCache, "creating state directory")
	}
	path := filepath.Join(stateDir, "history.sqlite")
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, dnf.Wrap(err, "History", dnf.KindInternal, "opening history database")
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the store's resources.
func (s *Store) Close() error { return s.db.Close() }

// migrate implements the forward-only, idempotent chain from spec §4.11:
// a fresh database is created directly at 1.2; an existing 1.1 database has
// the 1.2 migration applied; the stored `config.version` row is the sole
// authority on current state.
func (s *Store) migrate() error {
	exists, err := s.tableExists("config")
	if err != nil {
		return dnf.Wrap(err, "History", dnf.KindInternal, "checking schema state")
	}
	if !exists {
		return s.createAtLatest()
	}

	version, err := s.schemaVersion()
	if err != nil {
		return dnf.Wrap(err, "History", dnf.KindInternal, "reading schema version")
	}
	switch version {
	case "1.1":
		if err := s.migrateTo12(); err != nil {
			return dnf.Wrap(err, "History", dnf.KindInternal, "migrating schema 1.1 -> 1.2")
		}
		return nil
	case "1.2":
		return nil
	default:
		return dnf.Errorf("History", dnf.KindInternal, "unrecognized history schema version %q", version)
	}
}

func (s *Store) tableExists(name string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) schemaVersion() (string, error) {
	var v string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = 'version'`).Scan(&v)
	if err != nil {
		return "", err
	}
	return v, nil
}

const schemaV11 = `
CREATE TABLE config (key TEXT PRIMARY KEY, value TEXT NOT NULL);
CREATE TABLE trans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	dt_begin INTEGER NOT NULL,
	dt_end INTEGER,
	rpmdb_version TEXT,
	releasever TEXT,
	user_id TEXT,
	cmdline TEXT,
	state TEXT NOT NULL
);
CREATE TABLE trans_item (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trans_id INTEGER NOT NULL REFERENCES trans(id),
	name TEXT NOT NULL,
	epoch INTEGER NOT NULL,
	version TEXT NOT NULL,
	release TEXT NOT NULL,
	arch TEXT NOT NULL,
	action TEXT NOT NULL,
	reason TEXT NOT NULL,
	state TEXT NOT NULL DEFAULT 'ok'
);
CREATE TABLE comps_group_reason (group_id TEXT PRIMARY KEY, reason TEXT NOT NULL);
CREATE TABLE comps_environment_reason (environment_id TEXT PRIMARY KEY, reason TEXT NOT NULL);
`

const migration12 = `ALTER TABLE trans ADD COLUMN comment TEXT;`

func (s *Store) createAtLatest() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(schemaV11); err != nil {
		return err
	}
	if _, err := tx.Exec(migration12); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT INTO config(key, value) VALUES ('version', '1.2')`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) migrateTo12() error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.Exec(migration12); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE config SET value = '1.2' WHERE key = 'version'`); err != nil {
		return err
	}
	return tx.Commit()
}

// Transaction is one in-progress history record (spec §4.10 step 4,
// §4.11), satisfying rpmtxn.HistoryTransaction.
type Transaction struct {
	store *Store
	id    int64
}

// NewTransaction begins a history record: spec §4.10 step 4 ("record start
// time, user id, release-version, command line, comment; state =
// 'in-progress'").
func (s *Store) NewTransaction(userID, releaseVersion, commandLine, comment string) (*Transaction, error) {
	res, err := s.db.Exec(
		`INSERT INTO trans(dt_begin, releasever, user_id, cmdline, state, comment) VALUES (?, ?, ?, ?, 'in-progress', ?)`,
		timestamp(), releaseVersion, userID, commandLine, comment,
	)
	if err != nil {
		return nil, dnf.Wrap(err, "History", dnf.KindInternal, "inserting transaction record")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, dnf.Wrap(err, "History", dnf.KindInternal, "reading new transaction id")
	}
	return &Transaction{store: s, id: id}, nil
}

// AddItem inserts one plan item into the record, carrying its action and
// reason (spec §4.10 step 4).
func (t *Transaction) AddItem(action string, nevra sack.NEVRA, reason string) error {
	_, err := t.store.db.Exec(
		`INSERT INTO trans_item(trans_id, name, epoch, version, release, arch, action, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.id, nevra.Name, nevra.EVR.Epoch, nevra.EVR.Version, nevra.EVR.Release, nevra.Arch, action, reason,
	)
	if err != nil {
		return dnf.Wrap(err, "History", dnf.KindInternal, "inserting transaction item")
	}
	return nil
}

// MarkFailed flags every item in this record as failed (spec §4.10 step
// 6: "on non-zero return, flag the history record's items as failed").
func (t *Transaction) MarkFailed() error {
	_, err := t.store.db.Exec(`UPDATE trans_item SET state = 'failed' WHERE trans_id = ?`, t.id)
	if err != nil {
		return dnf.Wrap(err, "History", dnf.KindInternal, "marking transaction items failed")
	}
	return nil
}

// Finish records the end time and final state ("done" or "error",
// spec §4.10 steps 6-7).
func (t *Transaction) Finish(state string) error {
	_, err := t.store.db.Exec(`UPDATE trans SET dt_end = ?, state = ? WHERE id = ?`, timestamp(), state, t.id)
	if err != nil {
		return dnf.Wrap(err, "History", dnf.KindInternal, "finalizing transaction record")
	}
	return nil
}

// TransactionFilter narrows ListTransactions (spec §4.11's `filter`
// argument). A zero value matches every record.
type TransactionFilter struct {
	State string // empty matches any state
	Since time.Time
}

// TransactionRecord is one row returned by ListTransactions.
type TransactionRecord struct {
	ID             int64
	Begin, End     time.Time
	ReleaseVersion string
	UserID         string
	CommandLine    string
	Comment        string
	State          string
}

// ListTransactions returns matching records, most recent first.
func (s *Store) ListTransactions(filter TransactionFilter) ([]TransactionRecord, error) {
	query := `SELECT id, dt_begin, dt_end, releasever, user_id, cmdline, state, comment FROM trans WHERE 1=1`
	var args []interface{}
	if filter.State != "" {
		query += ` AND state = ?`
		args = append(args, filter.State)
	}
	if !filter.Since.IsZero() {
		query += ` AND dt_begin >= ?`
		args = append(args, filter.Since.Unix())
	}
	query += ` ORDER BY dt_begin DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, dnf.Wrap(err, "History", dnf.KindInternal, "listing transactions")
	}
	defer rows.Close()

	var out []TransactionRecord
	for rows.Next() {
		var rec TransactionRecord
		var begin int64
		var end sql.NullInt64
		var comment sql.NullString
		if err := rows.Scan(&rec.ID, &begin, &end, &rec.ReleaseVersion, &rec.UserID, &rec.CommandLine, &rec.State, &comment); err != nil {
			return nil, dnf.Wrap(err, "History", dnf.KindInternal, "scanning transaction row")
		}
		rec.Begin = time.Unix(begin, 0)
		if end.Valid {
			rec.End = time.Unix(end.Int64, 0)
		}
		if comment.Valid {
			rec.Comment = comment.String
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetItemReason returns the current reason for entity/key (spec §4.11),
// consulting the preloaded reason cache rather than the database directly.
func (s *Store) GetItemReason(entity Entity, key string, arch string) (string, bool) {
	switch entity {
	case EntityRPMPackage:
		reason, ok := s.reasonPkg[nameArch{name: key, arch: arch}]
		return reason, ok
	case EntityCompsGroup:
		reason, ok := s.reasonGrp[key]
		return reason, ok
	case EntityCompsEnvironment:
		reason, ok := s.reasonEnv[key]
		return reason, ok
	default:
		return "", false
	}
}

// PreloadReasonCache populates the three reason maps from the latest
// recorded reason per entity (spec §4.11: "on sack.fill(), preload three
// maps... These feed plan-item reason carry-over"). It takes the most
// recent trans_item row per (name, arch), since reason can change across
// transactions (e.g. a dependency promoted to user-installed).
func (s *Store) PreloadReasonCache() error {
	pkgRows, err := s.db.Query(`
		SELECT ti.name, ti.arch, ti.reason
		FROM trans_item ti
		JOIN (
			SELECT name, arch, MAX(trans_id) AS max_trans
			FROM trans_item
			GROUP BY name, arch
		) latest ON latest.name = ti.name AND latest.arch = ti.arch AND latest.max_trans = ti.trans_id
	`)
	if err != nil {
		return dnf.Wrap(err, "History", dnf.KindInternal, "preloading package reason cache")
	}
	defer pkgRows.Close()
	reasonPkg := make(map[nameArch]string)
	for pkgRows.Next() {
		var name, arch, reason string
		if err := pkgRows.Scan(&name, &arch, &reason); err != nil {
			return dnf.Wrap(err, "History", dnf.KindInternal, "scanning package reason row")
		}
		reasonPkg[nameArch{name: name, arch: arch}] = reason
	}
	if err := pkgRows.Err(); err != nil {
		return dnf.Wrap(err, "History", dnf.KindInternal, "iterating package reason rows")
	}

	reasonGrp, err := s.loadSimpleReasons("comps_group_reason", "group_id")
	if err != nil {
		return err
	}
	reasonEnv, err := s.loadSimpleReasons("comps_environment_reason", "environment_id")
	if err != nil {
		return err
	}

	s.reasonPkg = reasonPkg
	s.reasonGrp = reasonGrp
	s.reasonEnv = reasonEnv
	return nil
}

func (s *Store) loadSimpleReasons(table, keyColumn string) (map[string]string, error) {
	rows, err := s.db.Query(fmt.Sprintf(`SELECT %s, reason FROM %s`, keyColumn, table))
	if err != nil {
		return nil, dnf.Wrap(err, "History", dnf.KindInternal, "preloading %s reason cache", table)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var key, reason string
		if err := rows.Scan(&key, &reason); err != nil {
			return nil, dnf.Wrap(err, "History", dnf.KindInternal, "scanning %s reason row", table)
		}
		out[key] = reason
	}
	return out, rows.Err()
}

// SetGroupReason records (or updates) group_id's current reason.
func (s *Store) SetGroupReason(groupID, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO comps_group_reason(group_id, reason) VALUES (?, ?)
		 ON CONFLICT(group_id) DO UPDATE SET reason = excluded.reason`,
		groupID, reason,
	)
	return err
}

// SetEnvironmentReason records (or updates) environmentID's current reason.
func (s *Store) SetEnvironmentReason(environmentID, reason string) error {
	_, err := s.db.Exec(
		`INSERT INTO comps_environment_reason(environment_id, reason) VALUES (?, ?)
		 ON CONFLICT(environment_id) DO UPDATE SET reason = excluded.reason`,
		environmentID, reason,
	)
	return err
}

func timestamp() int64 { return time.Now().Unix() }
