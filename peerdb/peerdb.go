// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peerdb

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/embersuite/emberd/wire"
	_ "github.com/mattn/go-sqlite3"
)

// dbVersion is the schema version this package reads and writes.
const dbVersion = 1

// Forever marks an allow or deny deadline with no expiry.
const Forever int64 = -1

const (
	stmtGetNeighbor = iota
	stmtPutNeighbor
	stmtFreshestNeighbors
)

// neighborColumns is the column list shared by every statement that reads
// or writes whole neighbor rows, in the order scanNeighbor expects.
const neighborColumns = "network_id, addr, port, public_key, expire_block, " +
	"first_contact, last_contact, allowed, denied, data_url"

var queries = []string{
	stmtGetNeighbor: "SELECT " + neighborColumns + " FROM neighbors " +
		"WHERE network_id = ? AND addr = ? AND port = ?;",
	stmtPutNeighbor: "INSERT OR REPLACE INTO neighbors (" + neighborColumns +
		") VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);",
	stmtFreshestNeighbors: "SELECT " + neighborColumns + " FROM neighbors " +
		"WHERE network_id = ? AND expire_block > ? AND " +
		"(allowed = -1 OR allowed > ? OR (denied != -1 AND denied <= ?)) " +
		"ORDER BY last_contact DESC LIMIT ?;",
}

// createTableStatements bring a fresh database to its initial state.
var createTableStatements = []string{
	`CREATE TABLE config (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE neighbors (
		network_id INTEGER NOT NULL,
		addr TEXT NOT NULL,
		port INTEGER NOT NULL,
		public_key TEXT NOT NULL,
		expire_block INTEGER NOT NULL,
		first_contact INTEGER NOT NULL,
		last_contact INTEGER NOT NULL,
		allowed INTEGER NOT NULL,
		denied INTEGER NOT NULL,
		data_url TEXT NOT NULL,
		PRIMARY KEY (network_id, addr, port)
	);`,
	"CREATE INDEX by_last_contact ON neighbors (last_contact);",
}

// Neighbor is one peer record: where to reach it, the key it presented at
// its last handshake, and the local bookkeeping kept about it.
type Neighbor struct {
	NetworkID uint32
	Addr      wire.PeerAddress
	Port      uint16

	// PublicKey is the compressed secp256k1 key the peer last handshook
	// with, and ExpireBlock the burn height it stops being valid at.
	PublicKey   [wire.PubKeySize]byte
	ExpireBlock uint64

	// FirstContact and LastContact are unix times of the first and most
	// recent handshakes.
	FirstContact int64
	LastContact  int64

	// AllowedUntil and DeniedUntil are unix deadlines for the allow and
	// deny lists, Forever for entries with no expiry, and zero when the
	// peer is on neither list.  An active allow entry overrides a deny.
	AllowedUntil int64
	DeniedUntil  int64

	DataURL string
}

// DB is a durable neighbor database backed by sqlite.  All methods are safe
// for concurrent access.
type DB struct {
	mtx   sync.Mutex
	db    *sql.DB
	stmts []*sql.Stmt
}

// Open opens the neighbor database at dbPath, creating and initializing a
// fresh one if none exists there yet.
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	pragmas := []string{
		"PRAGMA page_size=4096;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	// About the only reason reading the version can fail is that the
	// database is not initialized yet.
	version, err := configValue(db, "version")
	if err != nil {
		if err := createDB(db); err != nil {
			db.Close()
			return nil, err
		}
		version, err = configValue(db, "version")
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	if v, err := strconv.Atoi(version); err != nil || v != dbVersion {
		db.Close()
		return nil, fmt.Errorf("unsupported neighbor database version "+
			"%q, expected %d", version, dbVersion)
	}

	pdb := &DB{db: db, stmts: make([]*sql.Stmt, len(queries))}
	for i := range queries {
		stmt, err := db.Prepare(queries[i])
		if err != nil {
			pdb.Close()
			return nil, err
		}
		pdb.stmts[i] = stmt
	}

	log.Tracef("Opened neighbor database at %s", dbPath)
	return pdb, nil
}

// createDB configures a fresh database, setting up all tables to their
// initial state.
func createDB(db *sql.DB) error {
	log.Infof("Initializing new neighbor database")

	for _, stmt := range createTableStatements {
		if _, err := db.Exec(stmt); err != nil {
			log.Warnf("sql table op failed %v [%v]", err, stmt)
			return err
		}
	}
	_, err := db.Exec("INSERT INTO config (name, value) VALUES (?, ?);",
		"version", strconv.Itoa(dbVersion))
	return err
}

// configValue reads one row of the config table.
func configValue(db *sql.DB, name string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM config WHERE name = ?;", name).
		Scan(&value)
	if err != nil {
		return "", err
	}
	return value, nil
}

// Close releases the prepared statements and closes the underlying database.
func (pdb *DB) Close() error {
	pdb.mtx.Lock()
	defer pdb.mtx.Unlock()

	for _, stmt := range pdb.stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return pdb.db.Close()
}

// rowScanner is the subset of sql.Row and sql.Rows that scanNeighbor needs.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanNeighbor decodes one neighbor row selected with neighborColumns.
func scanNeighbor(row rowScanner) (*Neighbor, error) {
	var (
		networkID                  int64
		addrStr, keyStr, dataURL   string
		port, expire               int64
		first, last, allow, denied int64
	)
	err := row.Scan(&networkID, &addrStr, &port, &keyStr, &expire,
		&first, &last, &allow, &denied, &dataURL)
	if err != nil {
		return nil, err
	}

	n := &Neighbor{
		NetworkID:    uint32(networkID),
		Port:         uint16(port),
		ExpireBlock:  uint64(expire),
		FirstContact: first,
		LastContact:  last,
		AllowedUntil: allow,
		DeniedUntil:  denied,
		DataURL:      dataURL,
	}
	rawAddr, err := hex.DecodeString(addrStr)
	if err != nil || len(rawAddr) != wire.PeerAddressSize {
		return nil, fmt.Errorf("malformed neighbor address %q", addrStr)
	}
	copy(n.Addr[:], rawAddr)
	rawKey, err := hex.DecodeString(keyStr)
	if err != nil || len(rawKey) != wire.PubKeySize {
		return nil, fmt.Errorf("malformed neighbor public key %q", keyStr)
	}
	copy(n.PublicKey[:], rawKey)
	return n, nil
}

// getNeighbor looks a neighbor up through the passed statement, which must
// be stmtGetNeighbor or a transaction rebinding of it.
func getNeighbor(stmt *sql.Stmt, networkID uint32, addr wire.PeerAddress,
	port uint16) (*Neighbor, error) {

	n, err := scanNeighbor(stmt.QueryRow(int64(networkID),
		hex.EncodeToString(addr[:]), int64(port)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return n, err
}

// putNeighbor writes a whole neighbor row through the passed statement.
func putNeighbor(stmt *sql.Stmt, n *Neighbor) error {
	_, err := stmt.Exec(int64(n.NetworkID), hex.EncodeToString(n.Addr[:]),
		int64(n.Port), hex.EncodeToString(n.PublicKey[:]),
		int64(n.ExpireBlock), n.FirstContact, n.LastContact,
		n.AllowedUntil, n.DeniedUntil, n.DataURL)
	return err
}

// GetNeighbor returns the stored record for the given peer, or nil when the
// peer has never been recorded.
//
// This function is safe for concurrent access.
func (pdb *DB) GetNeighbor(networkID uint32, addr wire.PeerAddress,
	port uint16) (*Neighbor, error) {

	pdb.mtx.Lock()
	defer pdb.mtx.Unlock()
	return getNeighbor(pdb.stmts[stmtGetNeighbor], networkID, addr, port)
}

// UpdateNeighbor records a handshake with the given peer, inserting the
// record or rotating the stored key in one database transaction.  The first
// contact time and the allow and deny deadlines of an existing record are
// preserved; a handshake never clears a ban.
//
// This function is safe for concurrent access.
func (pdb *DB) UpdateNeighbor(n *Neighbor) error {
	pdb.mtx.Lock()
	defer pdb.mtx.Unlock()

	dbTx, err := pdb.db.Begin()
	if err != nil {
		return err
	}
	existing, err := getNeighbor(dbTx.Stmt(pdb.stmts[stmtGetNeighbor]),
		n.NetworkID, n.Addr, n.Port)
	if err != nil {
		dbTx.Rollback()
		return err
	}

	row := *n
	if existing != nil {
		row.FirstContact = existing.FirstContact
		row.AllowedUntil = existing.AllowedUntil
		row.DeniedUntil = existing.DeniedUntil
	}
	if row.FirstContact == 0 {
		row.FirstContact = row.LastContact
	}
	if err := putNeighbor(dbTx.Stmt(pdb.stmts[stmtPutNeighbor]), &row); err != nil {
		dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

// FreshestNeighbors returns up to count recorded peers on the given network
// ordered by most recent contact, skipping peers whose key has expired as
// of burnHeight and peers that are currently banned.  count is capped at
// the most neighbors a single reply message may carry.
//
// This function is safe for concurrent access.
func (pdb *DB) FreshestNeighbors(networkID uint32, count uint64,
	burnHeight uint64) ([]*Neighbor, error) {

	if count > wire.MaxNeighborsPerMsg {
		count = wire.MaxNeighborsPerMsg
	}

	pdb.mtx.Lock()
	defer pdb.mtx.Unlock()

	now := time.Now().Unix()
	rows, err := pdb.stmts[stmtFreshestNeighbors].Query(int64(networkID),
		int64(burnHeight), now, now, int64(count))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var neighbors []*Neighbor
	for rows.Next() {
		n, err := scanNeighbor(rows)
		if err != nil {
			return nil, err
		}
		neighbors = append(neighbors, n)
	}
	return neighbors, rows.Err()
}

// setListDeadline updates a peer's allow or deny deadline, inserting a stub
// record when the peer has never been heard from.  The stub carries a zero
// key with expire height zero, so it can never surface as a fresh neighbor.
func (pdb *DB) setListDeadline(networkID uint32, addr wire.PeerAddress,
	port uint16, allowed bool, until int64) error {

	pdb.mtx.Lock()
	defer pdb.mtx.Unlock()

	dbTx, err := pdb.db.Begin()
	if err != nil {
		return err
	}
	n, err := getNeighbor(dbTx.Stmt(pdb.stmts[stmtGetNeighbor]), networkID,
		addr, port)
	if err != nil {
		dbTx.Rollback()
		return err
	}
	if n == nil {
		n = &Neighbor{NetworkID: networkID, Addr: addr, Port: port}
	}
	if allowed {
		n.AllowedUntil = until
	} else {
		n.DeniedUntil = until
	}
	if err := putNeighbor(dbTx.Stmt(pdb.stmts[stmtPutNeighbor]), n); err != nil {
		dbTx.Rollback()
		return err
	}
	return dbTx.Commit()
}

// Ban denies the given peer until the given unix time, or without expiry
// when until is Forever.
//
// This function is safe for concurrent access.
func (pdb *DB) Ban(networkID uint32, addr wire.PeerAddress, port uint16,
	until int64) error {

	log.Debugf("Banning %s:%d until %d", addr, port, until)
	return pdb.setListDeadline(networkID, addr, port, false, until)
}

// Allow puts the given peer on the allow list until the given unix time, or
// without expiry when until is Forever.  An active allow entry overrides
// any ban.
//
// This function is safe for concurrent access.
func (pdb *DB) Allow(networkID uint32, addr wire.PeerAddress, port uint16,
	until int64) error {

	return pdb.setListDeadline(networkID, addr, port, true, until)
}

// IsBanned returns whether the given peer is currently denied.  Unknown
// peers are not banned, and an active allow entry overrides a deny.
//
// This function is safe for concurrent access.
func (pdb *DB) IsBanned(networkID uint32, addr wire.PeerAddress,
	port uint16) (bool, error) {

	n, err := pdb.GetNeighbor(networkID, addr, port)
	if err != nil || n == nil {
		return false, err
	}

	now := time.Now().Unix()
	if n.AllowedUntil == Forever || n.AllowedUntil > now {
		return false, nil
	}
	return n.DeniedUntil == Forever || n.DeniedUntil > now, nil
}
