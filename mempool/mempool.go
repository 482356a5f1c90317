// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package mempool

import (
	"bytes"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/embersuite/emberd/bloom"
	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/wire"
	_ "github.com/mattn/go-sqlite3"
)

const (
	// storeVersion is the schema version this package reads and writes.
	storeVersion = 1

	// walkBatchSize is the number of rows fetched per query while
	// iterating the pool in fee order.  Fetching in batches keeps the
	// read cursor short-lived so the nonce cache writes a walk performs
	// never contend with it.
	walkBatchSize = 512
)

// Config table row names.
const (
	configVersionName   = "version"
	configBloomSeedName = "bloomseed"
	configPageSaltName  = "pagesalt"
)

const (
	stmtHasTx = iota
	stmtGetTx
	stmtInsertTx
	stmtDeleteTx
	stmtGetTxByOrigin
	stmtGetTxBySponsor
	stmtGetTxsAfter
	stmtNumTxAtBlock
	stmtMaxHeight
	stmtInsertRandomized
	stmtDeleteRandomized
	stmtGetRandomized
	stmtExpiredTxIDs
	stmtGCVictims
	stmtGetNonce
	stmtSetNonce
	stmtClearNonces
	stmtWalkBatch
	stmtNumRecentTxs
	stmtRecentTxIDs
	stmtFindMissing
)

// txColumns is the column list shared by every statement that reads or
// writes whole mempool rows, in the order scanTxInfo expects.
const txColumns = "txid, origin_address, origin_nonce, sponsor_address, " +
	"sponsor_nonce, fee, length, consensus_hash, block_header_hash, " +
	"height, accept_time, tx"

var queries = []string{
	stmtHasTx: "SELECT 1 FROM mempool WHERE txid = ?;",
	stmtGetTx: "SELECT " + txColumns + " FROM mempool WHERE txid = ?;",
	stmtInsertTx: "INSERT INTO mempool (" + txColumns + ") " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);",
	stmtDeleteTx: "DELETE FROM mempool WHERE txid = ?;",
	stmtGetTxByOrigin: "SELECT " + txColumns + " FROM mempool " +
		"WHERE origin_address = ? AND origin_nonce = ?;",
	stmtGetTxBySponsor: "SELECT " + txColumns + " FROM mempool " +
		"WHERE sponsor_address = ? AND sponsor_nonce = ?;",
	stmtGetTxsAfter: "SELECT " + txColumns + " FROM mempool " +
		"WHERE accept_time >= ? AND consensus_hash = ? AND " +
		"block_header_hash = ? ORDER BY origin_nonce ASC LIMIT ?;",
	stmtNumTxAtBlock: "SELECT COUNT(*) FROM mempool " +
		"WHERE consensus_hash = ? AND block_header_hash = ?;",
	stmtMaxHeight: "SELECT MAX(height) FROM mempool;",
	stmtInsertRandomized: "INSERT INTO randomized_txids (txid, hashed_txid) " +
		"VALUES (?, ?);",
	stmtDeleteRandomized: "DELETE FROM randomized_txids WHERE txid = ?;",
	stmtGetRandomized:    "SELECT hashed_txid FROM randomized_txids WHERE txid = ?;",
	stmtExpiredTxIDs:     "SELECT txid FROM mempool WHERE height > ? AND height <= ?;",
	stmtGCVictims:        "SELECT txid, height FROM mempool WHERE height < ?;",
	stmtGetNonce:         "SELECT nonce FROM nonces WHERE address = ?;",
	stmtSetNonce:         "INSERT OR REPLACE INTO nonces (address, nonce) VALUES (?, ?);",
	stmtClearNonces:      "DELETE FROM nonces;",
	stmtWalkBatch: "SELECT " + txColumns + " FROM mempool " +
		"WHERE (fee < ? OR (fee = ? AND txid > ?)) AND fee >= ? " +
		"ORDER BY fee DESC, txid ASC LIMIT ?;",
	stmtNumRecentTxs: "SELECT COUNT(*) FROM mempool WHERE height > ?;",
	stmtRecentTxIDs:  "SELECT txid FROM mempool WHERE height > ? ORDER BY txid ASC LIMIT ?;",
	stmtFindMissing: "SELECT mempool.txid, mempool.tx, randomized_txids.hashed_txid " +
		"FROM mempool JOIN randomized_txids ON mempool.txid = randomized_txids.txid " +
		"WHERE randomized_txids.hashed_txid > ? AND mempool.height > ? " +
		"ORDER BY randomized_txids.hashed_txid ASC LIMIT ?;",
}

// createTableStatements bring a fresh database to its initial state.
var createTableStatements = []string{
	`CREATE TABLE config (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`,
	`CREATE TABLE mempool (
		txid TEXT NOT NULL PRIMARY KEY,
		origin_address TEXT NOT NULL,
		origin_nonce INTEGER NOT NULL,
		sponsor_address TEXT NOT NULL,
		sponsor_nonce INTEGER NOT NULL,
		fee INTEGER NOT NULL,
		length INTEGER NOT NULL,
		consensus_hash TEXT NOT NULL,
		block_header_hash TEXT NOT NULL,
		height INTEGER NOT NULL,
		accept_time INTEGER NOT NULL,
		tx BLOB NOT NULL,
		UNIQUE (origin_address, origin_nonce),
		UNIQUE (sponsor_address, sponsor_nonce)
	);`,
	"CREATE INDEX by_height ON mempool (height);",
	"CREATE INDEX by_fee ON mempool (fee DESC, txid ASC);",
	"CREATE INDEX by_block ON mempool (consensus_hash, block_header_hash);",
	`CREATE TABLE nonces (
		address TEXT NOT NULL PRIMARY KEY,
		nonce INTEGER NOT NULL
	);`,
	`CREATE TABLE randomized_txids (
		txid TEXT NOT NULL PRIMARY KEY,
		hashed_txid TEXT NOT NULL
	);`,
	"CREATE INDEX by_hashed_txid ON randomized_txids (hashed_txid);",
}

// TxMetadata is the admission context stored alongside a pooled transaction.
// ConsensusHash, BlockHash, and Height name the chain tip the node held when
// it accepted the transaction; they are bookkeeping, not a restriction on
// which fork the transaction may confirm in.
type TxMetadata struct {
	TxID           chainhash.Hash
	OriginAddress  wire.Address
	OriginNonce    uint64
	SponsorAddress wire.Address
	SponsorNonce   uint64
	Fee            uint64
	Len            uint64
	ConsensusHash  chainhash.Hash
	BlockHash      chainhash.Hash
	Height         uint64
	AcceptTime     int64
}

// TxInfo is a pooled transaction together with its admission context.
type TxInfo struct {
	Tx       *wire.Transaction
	Metadata TxMetadata
}

// AddOutcome describes how TryAdd disposed of a submitted transaction.
type AddOutcome int

const (
	// TxAdded means the transaction was stored and no pooled transaction
	// was affected.
	TxAdded AddOutcome = iota

	// TxReplaced means the transaction was stored and displaced a pooled
	// rival that spent the same nonce at a lower fee.
	TxReplaced

	// TxAlreadyExists means an identical transaction was already pooled
	// and the store was left untouched.
	TxAlreadyExists
)

// String returns the AddOutcome as a human-readable name.
func (o AddOutcome) String() string {
	switch o {
	case TxAdded:
		return "added"
	case TxReplaced:
		return "replaced"
	case TxAlreadyExists:
		return "already exists"
	}
	return fmt.Sprintf("unknown outcome (%d)", int(o))
}

// Store is a durable pool of unconfirmed transactions backed by sqlite.
// All methods are safe for concurrent access; a single mutex serializes
// writers, which sqlite wants anyway.
type Store struct {
	mtx   sync.Mutex
	db    *sql.DB
	stmts []*sql.Stmt

	// pageSalt keys the salted transaction id ordering served to syncing
	// peers, and bloomSeed keys the recency filter's hash functions.
	// Both are minted when the store is created and persist across
	// restarts in the config table.
	pageSalt  [32]byte
	bloomSeed [bloom.HasherSeedSize]byte

	// bloomCounter tracks the ids of transactions inside the recency
	// window, which is anchored at bloomMaxHeight.  The counter always
	// mirrors the committed rows with height > bloomFloor(bloomMaxHeight)
	// and is rebuilt from them when the store opens.
	bloomCounter   *bloom.CountingFilter
	bloomMaxHeight uint64
}

// Open opens the mempool store at dbPath, creating and initializing a fresh
// one if no store exists there yet.
func Open(dbPath string) (*Store, error) {
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
	version, err := configValue(db, configVersionName)
	if err != nil {
		if err := createStore(db); err != nil {
			db.Close()
			return nil, err
		}
		version, err = configValue(db, configVersionName)
		if err != nil {
			db.Close()
			return nil, err
		}
	}
	if v, err := strconv.Atoi(version); err != nil || v != storeVersion {
		db.Close()
		return nil, fmt.Errorf("unsupported mempool store version "+
			"%q, expected %d", version, storeVersion)
	}

	s := &Store{db: db}
	if err := s.loadSalts(); err != nil {
		db.Close()
		return nil, err
	}

	s.stmts = make([]*sql.Stmt, len(queries))
	for i := range queries {
		stmt, err := db.Prepare(queries[i])
		if err != nil {
			s.Close()
			return nil, err
		}
		s.stmts[i] = stmt
	}

	if err := s.rebuildBloomCounter(); err != nil {
		s.Close()
		return nil, err
	}

	log.Tracef("Opened mempool store at %s", dbPath)
	return s, nil
}

// createStore configures a fresh database, setting up all tables to their
// initial state and minting the random salts the store keeps for life.
func createStore(db *sql.DB) error {
	log.Infof("Initializing new mempool store")

	for _, stmt := range createTableStatements {
		if _, err := db.Exec(stmt); err != nil {
			log.Warnf("sql table op failed %v [%v]", err, stmt)
			return err
		}
	}

	var salts [64]byte
	if _, err := rand.Read(salts[:]); err != nil {
		return err
	}
	rows := []struct{ name, value string }{
		{configVersionName, strconv.Itoa(storeVersion)},
		{configBloomSeedName, hex.EncodeToString(salts[:32])},
		{configPageSaltName, hex.EncodeToString(salts[32:])},
	}
	for _, row := range rows {
		_, err := db.Exec("INSERT INTO config (name, value) VALUES (?, ?);",
			row.name, row.value)
		if err != nil {
			return err
		}
	}
	return nil
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

// loadSalts loads the persisted bloom seed and page salt and sizes the
// recency filter.
func (s *Store) loadSalts() error {
	for _, salt := range []struct {
		name string
		dst  []byte
	}{
		{configBloomSeedName, s.bloomSeed[:]},
		{configPageSaltName, s.pageSalt[:]},
	} {
		value, err := configValue(s.db, salt.name)
		if err != nil {
			return err
		}
		raw, err := hex.DecodeString(value)
		if err != nil || len(raw) != len(salt.dst) {
			return fmt.Errorf("malformed %s config entry %q",
				salt.name, value)
		}
		copy(salt.dst, raw)
	}

	s.bloomCounter = bloom.NewCountingFilter(bloom.NewNodeHasher(s.bloomSeed),
		bloom.MaxBloomCounterTxs, bloom.BloomCounterErrorRate)
	return nil
}

// rebuildBloomCounter reloads the recency filter from the mempool table.
// The filter itself is never persisted; the rows it summarizes are.
func (s *Store) rebuildBloomCounter() error {
	maxHeight, ok, err := s.maxHeight()
	if err != nil || !ok {
		return err
	}

	// A negative limit is no limit; soundness of the filter beats its
	// false positive rate if the window somehow holds more transactions
	// than the filter was sized for.
	txids, err := s.recentTxIDs(maxHeight, -1)
	if err != nil {
		return err
	}
	for i := range txids {
		s.bloomCounter.Insert(txids[i][:])
	}
	s.bloomMaxHeight = maxHeight

	log.Debugf("Rebuilt mempool recency filter with %d transactions "+
		"above height %d", len(txids), bloomFloor(maxHeight))
	return nil
}

// Close releases the prepared statements and closes the underlying database.
func (s *Store) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, stmt := range s.stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return s.db.Close()
}

// bloomFloor returns the height at or below which transactions are no
// longer recent when the newest pooled transaction sits at maxHeight.
func bloomFloor(maxHeight uint64) uint64 {
	if maxHeight < bloom.BloomCounterDepth {
		return 0
	}
	return maxHeight - bloom.BloomCounterDepth
}

// hashedTxID returns the salted ordering key for txid.  The salt is minted
// when the store is created, so remote peers paginating the pool can
// neither predict nor bias the order their pages arrive in.
func (s *Store) hashedTxID(txid *chainhash.Hash) chainhash.Hash {
	data := make([]byte, 0, len(s.pageSalt)+chainhash.HashSize)
	data = append(data, s.pageSalt[:]...)
	data = append(data, txid[:]...)
	return chainhash.HashH(data)
}

// rowScanner is the subset of sql.Row and sql.Rows that scanTxInfo needs.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanTxInfo decodes one mempool row selected with txColumns.
func scanTxInfo(row rowScanner) (*TxInfo, error) {
	var (
		txidStr, originStr, sponsorStr  string
		consensusStr, blockStr          string
		originNonce, sponsorNonce       int64
		fee, length, height, acceptTime int64
		txBytes                         []byte
	)
	err := row.Scan(&txidStr, &originStr, &originNonce, &sponsorStr,
		&sponsorNonce, &fee, &length, &consensusStr, &blockStr,
		&height, &acceptTime, &txBytes)
	if err != nil {
		return nil, err
	}

	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return nil, fmt.Errorf("malformed txid %q: %v", txidStr, err)
	}
	originAddr, err := wire.DecodeAddress(originStr)
	if err != nil {
		return nil, fmt.Errorf("malformed origin address %q: %v",
			originStr, err)
	}
	sponsorAddr, err := wire.DecodeAddress(sponsorStr)
	if err != nil {
		return nil, fmt.Errorf("malformed sponsor address %q: %v",
			sponsorStr, err)
	}
	consensusHash, err := chainhash.NewHashFromStr(consensusStr)
	if err != nil {
		return nil, fmt.Errorf("malformed consensus hash %q: %v",
			consensusStr, err)
	}
	blockHash, err := chainhash.NewHashFromStr(blockStr)
	if err != nil {
		return nil, fmt.Errorf("malformed block hash %q: %v",
			blockStr, err)
	}

	tx := &wire.Transaction{}
	if err := tx.Deserialize(bytes.NewReader(txBytes)); err != nil {
		return nil, fmt.Errorf("undecodable transaction %v: %v",
			txid, err)
	}

	return &TxInfo{
		Tx: tx,
		Metadata: TxMetadata{
			TxID:           *txid,
			OriginAddress:  originAddr,
			OriginNonce:    uint64(originNonce),
			SponsorAddress: sponsorAddr,
			SponsorNonce:   uint64(sponsorNonce),
			Fee:            uint64(fee),
			Len:            uint64(length),
			ConsensusHash:  *consensusHash,
			BlockHash:      *blockHash,
			Height:         uint64(height),
			AcceptTime:     acceptTime,
		},
	}, nil
}

// TryAdd submits a transaction for admission at the given chain tip.
//
// Resubmitting a transaction the pool already holds leaves the store
// untouched and reports TxAlreadyExists.  A transaction spending an
// (address, nonce) pair another pooled transaction spends is admitted only
// when it pays a strictly higher fee than the incumbent, in which case the
// incumbent is removed in the same database transaction; otherwise a
// RuleError with ErrConflictingNonce is returned.  The fee comparison is on
// absolute fees, never size-normalized rates, and pays no attention to
// which chain tip either side was accepted under.
//
// This function is safe for concurrent access.
func (s *Store) TryAdd(consensusHash, blockHash *chainhash.Hash, height uint64,
	tx *wire.Transaction) (AddOutcome, error) {

	txBytes, err := tx.Bytes()
	if err != nil {
		return 0, err
	}
	if len(txBytes) > wire.MaxTxSerializeSize {
		str := fmt.Sprintf("transaction of %d bytes is larger than "+
			"the allowed %d bytes", len(txBytes),
			wire.MaxTxSerializeSize)
		return 0, ruleError(ErrTxTooBig, str)
	}
	txid := tx.TxID()

	s.mtx.Lock()
	defer s.mtx.Unlock()

	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	outcome, removed, err := s.tryAdd(dbTx, consensusHash, blockHash,
		height, &txid, txBytes, tx.Fee, tx.Origin, tx.Sponsored())
	if err != nil {
		dbTx.Rollback()
		return 0, err
	}
	if err := dbTx.Commit(); err != nil {
		return 0, err
	}

	// The rows are the source of truth for the recency filter, so the
	// filter only changes once the row changes have committed.
	for i := range removed {
		s.bloomRemove(&removed[i])
	}
	if height > s.bloomMaxHeight {
		s.bloomMaxHeight = height
	}
	if outcome != TxAlreadyExists && height > bloomFloor(s.bloomMaxHeight) {
		s.bloomCounter.Insert(txid[:])
	}

	log.Tracef("Transaction %v at height %d (fee %d): %v", &txid, height,
		tx.Fee, outcome)
	return outcome, nil
}

// tryAdd runs the admission rules inside dbTx.  It returns the outcome
// along with the ids of any deleted rows the recency filter still tracks;
// the caller removes those from the filter once dbTx commits.
func (s *Store) tryAdd(dbTx *sql.Tx, consensusHash, blockHash *chainhash.Hash,
	height uint64, txid *chainhash.Hash, txBytes []byte, fee uint64,
	origin, sponsor wire.TxAuth) (AddOutcome, []chainhash.Hash, error) {

	exists, err := hasTxRow(dbTx.Stmt(s.stmts[stmtHasTx]), txid)
	if err != nil {
		return 0, nil, err
	}
	if exists {
		return TxAlreadyExists, nil, nil
	}

	var removed []chainhash.Hash
	floor := bloomFloor(s.bloomMaxHeight)

	outcome := TxAdded
	prior, err := s.conflictingTx(dbTx, origin, sponsor)
	if err != nil {
		return 0, nil, err
	}
	if prior != nil {
		if fee <= prior.Fee {
			str := fmt.Sprintf("transaction %v pays %d which does "+
				"not beat the %d paid by %v spending the same "+
				"nonce", txid, fee, prior.Fee, &prior.TxID)
			return 0, nil, ruleError(ErrConflictingNonce, str)
		}
		if err := s.deleteTx(dbTx, &prior.TxID); err != nil {
			return 0, nil, err
		}
		if prior.Height > floor {
			removed = append(removed, prior.TxID)
		}
		outcome = TxReplaced
	}

	// When this transaction advances the pool's maximum height, collect
	// the transactions its arrival pushes out of the recency window.
	if height > s.bloomMaxHeight {
		newFloor := bloomFloor(height)
		if newFloor > floor {
			expired, err := scanTxIDColumn(
				dbTx.Stmt(s.stmts[stmtExpiredTxIDs]).
					Query(int64(floor), int64(newFloor)))
			if err != nil {
				return 0, nil, err
			}
			removed = append(removed, expired...)
		}
	}

	_, err = dbTx.Stmt(s.stmts[stmtInsertTx]).Exec(
		txid.String(), origin.Address.String(), int64(origin.Nonce),
		sponsor.Address.String(), int64(sponsor.Nonce), int64(fee),
		int64(len(txBytes)), consensusHash.String(), blockHash.String(),
		int64(height), time.Now().Unix(), txBytes)
	if err != nil {
		return 0, nil, err
	}

	hashed := s.hashedTxID(txid)
	_, err = dbTx.Stmt(s.stmts[stmtInsertRandomized]).Exec(txid.String(),
		hashed.String())
	if err != nil {
		return 0, nil, err
	}
	return outcome, removed, nil
}

// conflictingTx returns the pooled transaction spending the same origin or
// sponsor nonce as the submitted auths, or nil when neither is taken.  The
// origin pair is checked first.
func (s *Store) conflictingTx(dbTx *sql.Tx, origin, sponsor wire.TxAuth) (*TxMetadata, error) {
	info, err := scanTxInfo(dbTx.Stmt(s.stmts[stmtGetTxByOrigin]).
		QueryRow(origin.Address.String(), int64(origin.Nonce)))
	if err == sql.ErrNoRows {
		info, err = scanTxInfo(dbTx.Stmt(s.stmts[stmtGetTxBySponsor]).
			QueryRow(sponsor.Address.String(), int64(sponsor.Nonce)))
	}
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info.Metadata, nil
}

// deleteTx removes a pooled transaction and its ordering key inside dbTx.
func (s *Store) deleteTx(dbTx *sql.Tx, txid *chainhash.Hash) error {
	if _, err := dbTx.Stmt(s.stmts[stmtDeleteTx]).Exec(txid.String()); err != nil {
		return err
	}
	_, err := dbTx.Stmt(s.stmts[stmtDeleteRandomized]).Exec(txid.String())
	return err
}

// bloomRemove drops a transaction id from the recency filter.
func (s *Store) bloomRemove(txid *chainhash.Hash) {
	if !s.bloomCounter.Remove(txid[:]) {
		log.Debugf("Recency filter did not contain %v", txid)
	}
}

// scanTxIDColumn collects a single-column result set of transaction ids.
func scanTxIDColumn(rows *sql.Rows, err error) ([]chainhash.Hash, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txids []chainhash.Hash
	for rows.Next() {
		var txidStr string
		if err := rows.Scan(&txidStr); err != nil {
			return nil, err
		}
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return nil, fmt.Errorf("malformed txid %q: %v",
				txidStr, err)
		}
		txids = append(txids, *txid)
	}
	return txids, rows.Err()
}

// hasTxRow reports whether a row for txid exists via the passed existence
// statement.
func hasTxRow(stmt *sql.Stmt, txid *chainhash.Hash) (bool, error) {
	var one int
	err := stmt.QueryRow(txid.String()).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// HasTx returns whether the pool holds the transaction with the given id.
//
// This function is safe for concurrent access.
func (s *Store) HasTx(txid *chainhash.Hash) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return hasTxRow(s.stmts[stmtHasTx], txid)
}

// GetTx returns the pooled transaction with the given id, or nil when the
// pool does not hold it.
//
// This function is safe for concurrent access.
func (s *Store) GetTx(txid *chainhash.Hash) (*TxInfo, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info, err := scanTxInfo(s.stmts[stmtGetTx].QueryRow(txid.String()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return info, err
}

// GetTxMetadataByAddress returns the admission context of the pooled
// transaction spending the given (address, nonce) pair, looked up by origin
// when isOrigin is true and by sponsor otherwise.  It returns nil when no
// pooled transaction spends the pair.
//
// This function is safe for concurrent access.
func (s *Store) GetTxMetadataByAddress(isOrigin bool, addr wire.Address,
	nonce uint64) (*TxMetadata, error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	stmt := s.stmts[stmtGetTxBySponsor]
	if isOrigin {
		stmt = s.stmts[stmtGetTxByOrigin]
	}
	info, err := scanTxInfo(stmt.QueryRow(addr.String(), int64(nonce)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &info.Metadata, nil
}

// GetTxsAfter returns up to count transactions that were accepted at the
// given chain tip no earlier than since, ordered by origin nonce.
//
// This function is safe for concurrent access.
func (s *Store) GetTxsAfter(consensusHash, blockHash *chainhash.Hash,
	since int64, count uint64) ([]*TxInfo, error) {

	s.mtx.Lock()
	defer s.mtx.Unlock()

	rows, err := s.stmts[stmtGetTxsAfter].Query(since,
		consensusHash.String(), blockHash.String(), int64(count))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*TxInfo
	for rows.Next() {
		info, err := scanTxInfo(rows)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// GetNumTxAtBlock returns how many pooled transactions were accepted at the
// given chain tip.
//
// This function is safe for concurrent access.
func (s *Store) GetNumTxAtBlock(consensusHash, blockHash *chainhash.Hash) (uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var count int64
	err := s.stmts[stmtNumTxAtBlock].QueryRow(consensusHash.String(),
		blockHash.String()).Scan(&count)
	if err != nil {
		return 0, err
	}
	return uint64(count), nil
}

// MaxHeight returns the greatest acceptance height over the pool.  ok is
// false when the pool is empty.
//
// This function is safe for concurrent access.
func (s *Store) MaxHeight() (uint64, bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.maxHeight()
}

func (s *Store) maxHeight() (uint64, bool, error) {
	var height sql.NullInt64
	err := s.stmts[stmtMaxHeight].QueryRow().Scan(&height)
	if err != nil {
		return 0, false, err
	}
	if !height.Valid {
		return 0, false, nil
	}
	return uint64(height.Int64), true, nil
}

// GetRandomizedTxID returns the salted ordering key stored for txid, or nil
// when the pool does not hold it.
//
// This function is safe for concurrent access.
func (s *Store) GetRandomizedTxID(txid *chainhash.Hash) (*chainhash.Hash, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	var hashedStr string
	err := s.stmts[stmtGetRandomized].QueryRow(txid.String()).Scan(&hashedStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return chainhash.NewHashFromStr(hashedStr)
}

// GarbageCollect removes every pooled transaction accepted below minHeight,
// except those for which keep returns true.  A nil keep retains nothing.
// It returns the number of transactions removed.
//
// This function is safe for concurrent access.
func (s *Store) GarbageCollect(minHeight uint64, keep func(*chainhash.Hash) bool) (uint64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	victims, err := s.gcVictims(dbTx, minHeight, keep)
	if err == nil {
		for i := range victims {
			if err = s.deleteTx(dbTx, &victims[i].txid); err != nil {
				break
			}
		}
	}
	if err != nil {
		dbTx.Rollback()
		return 0, err
	}
	if err := dbTx.Commit(); err != nil {
		return 0, err
	}

	floor := bloomFloor(s.bloomMaxHeight)
	for i := range victims {
		if victims[i].height > floor {
			s.bloomRemove(&victims[i].txid)
		}
	}

	if len(victims) > 0 {
		log.Debugf("Garbage collected %d transactions below height %d",
			len(victims), minHeight)
	}
	return uint64(len(victims)), nil
}

// removedTx pairs a deleted transaction id with the height it was accepted
// at, which decides whether the recency filter still tracks it.
type removedTx struct {
	txid   chainhash.Hash
	height uint64
}

// gcVictims collects the transactions GarbageCollect will remove.
func (s *Store) gcVictims(dbTx *sql.Tx, minHeight uint64,
	keep func(*chainhash.Hash) bool) ([]removedTx, error) {

	rows, err := dbTx.Stmt(s.stmts[stmtGCVictims]).Query(int64(minHeight))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var victims []removedTx
	for rows.Next() {
		var txidStr string
		var height int64
		if err := rows.Scan(&txidStr, &height); err != nil {
			return nil, err
		}
		txid, err := chainhash.NewHashFromStr(txidStr)
		if err != nil {
			return nil, fmt.Errorf("malformed txid %q: %v",
				txidStr, err)
		}
		if keep != nil && keep(txid) {
			continue
		}
		victims = append(victims, removedTx{
			txid:   *txid,
			height: uint64(height),
		})
	}
	return victims, rows.Err()
}
