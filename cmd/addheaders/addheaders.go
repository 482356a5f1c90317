// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/embersuite/emberd/chainstate"
	"github.com/embersuite/emberd/database"
	"github.com/embersuite/emberd/limits"

	"github.com/btcsuite/btclog"
)

const (
	// chainDbNamePrefix is the prefix for the emberd chain state database.
	chainDbNamePrefix = "chainstate"
)

var (
	cfg *config
	log btclog.Logger
)

// loadChainDB opens the chain state database and returns a handle to it.
func loadChainDB() (database.DB, error) {
	// The database name is based on the database type.
	dbName := chainDbNamePrefix + "_" + cfg.DbType
	dbPath := filepath.Join(cfg.DataDir, dbName)

	log.Infof("Loading chain state database from '%s'", dbPath)
	db, err := database.Open(cfg.DbType, dbPath)
	if err != nil {
		// Return the error if it's not because the database doesn't
		// exist.
		var dbErr database.Error
		if !errors.As(err, &dbErr) ||
			dbErr.ErrorCode != database.ErrDbNotFound {

			return nil, err
		}

		// Create the db if it does not exist.
		err = os.MkdirAll(cfg.DataDir, 0700)
		if err != nil {
			return nil, err
		}
		db, err = database.Create(cfg.DbType, dbPath)
		if err != nil {
			return nil, err
		}
	}

	log.Info("Chain state database loaded")
	return db, nil
}

// realMain is the real main function for the utility.  It is necessary to
// work around the fact that deferred functions do not run when os.Exit() is
// called.
func realMain() error {
	// Load configuration and parse command line.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg

	// Setup logging.
	backendLogger := btclog.NewBackend(os.Stdout)
	defer os.Stdout.Sync()
	log = backendLogger.Logger("MAIN")
	database.UseLogger(backendLogger.Logger("EMDB"))

	// Load the chain state database.
	db, err := loadChainDB()
	if err != nil {
		log.Errorf("Failed to load database: %v", err)
		return err
	}
	defer db.Close()

	fi, err := os.Open(cfg.InFile)
	if err != nil {
		log.Errorf("Failed to open file %v: %v", cfg.InFile, err)
		return err
	}
	defer fi.Close()

	// Create a header importer for the database and input file and start
	// it.  The results channel returned from Import contains the
	// statistics about the import including an error if something went
	// wrong.
	importer := newHeaderImporter(chainstate.NewHeaderIndex(db), fi)

	log.Info("Starting import")
	resultsChan := importer.Import()
	results := <-resultsChan
	if results.err != nil {
		log.Errorf("%v", results.err)
		return results.err
	}

	log.Infof("Processed a total of %d headers (%d imported, %d already "+
		"known)", results.headersProcessed, results.headersImported,
		results.headersProcessed-results.headersImported)
	return nil
}

func main() {
	// Up some limits.
	if err := limits.SetLimits(); err != nil {
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := realMain(); err != nil {
		os.Exit(1)
	}
}
