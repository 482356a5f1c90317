// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"runtime/pprof"

	"github.com/embersuite/emberd/database"
	"github.com/embersuite/emberd/limits"
	"github.com/embersuite/emberd/mempool"
	"github.com/embersuite/emberd/peerdb"
)

// cfg is the loaded configuration shared by the rest of package main.  It is
// set in emberdMain before any subsystem consults it.
var cfg *config

// emberdMain is the real main function for emberd.  It is necessary to work
// around the fact that deferred functions do not run when os.Exit() is
// called.  The optional serverChan parameter is mainly used by tests to be
// notified with the server once it is setup so they can gracefully stop it.
func emberdMain(serverChan chan<- *server) error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	tcfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	cfg = tcfg
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	// Get a channel that will be closed when a shutdown signal has been
	// triggered either from an OS signal such as SIGINT (Ctrl+C) or from
	// another subsystem.
	interrupt := interruptListener()
	defer embdLog.Info("Shutdown complete")

	// Show version at startup.
	embdLog.Infof("Version %s", version())

	// Enable http profiling server if requested.
	if cfg.Profile != "" {
		go func() {
			listenAddr := net.JoinHostPort("", cfg.Profile)
			embdLog.Infof("Profile server listening on %s", listenAddr)
			profileRedirect := http.RedirectHandler("/debug/pprof",
				http.StatusSeeOther)
			http.Handle("/", profileRedirect)
			embdLog.Errorf("%v", http.ListenAndServe(listenAddr, nil))
		}()
	}

	// Write cpu profile if requested.
	if cfg.CPUProfile != "" {
		f, err := os.Create(cfg.CPUProfile)
		if err != nil {
			embdLog.Errorf("Unable to create cpu profile: %v", err)
			return err
		}
		pprof.StartCPUProfile(f)
		defer f.Close()
		defer pprof.StopCPUProfile()
	}

	// Perform upgrades to emberd as new versions require it.
	if err := doUpgrades(); err != nil {
		embdLog.Errorf("%v", err)
		return err
	}

	// Return now if an interrupt signal was triggered during startup.
	if interruptRequested(interrupt) {
		return nil
	}

	// Load the chain state database.
	db, err := loadChainDB()
	if err != nil {
		embdLog.Errorf("%v", err)
		return err
	}
	defer func() {
		// Ensure the database is sync'd and closed on shutdown.
		embdLog.Infof("Gracefully shutting down the database...")
		db.Close()
	}()

	// Open the peer database.
	peerDB, err := peerdb.Open(filepath.Join(cfg.DataDir, peerDbName))
	if err != nil {
		prdbLog.Errorf("%v", err)
		return err
	}
	defer peerDB.Close()

	// Open the mempool store.
	txPool, err := mempool.Open(filepath.Join(cfg.DataDir, mempoolDbName))
	if err != nil {
		txmpLog.Errorf("%v", err)
		return err
	}
	defer txPool.Close()

	// Return now if an interrupt signal was triggered during startup.
	if interruptRequested(interrupt) {
		return nil
	}

	// Create server and start it.
	server, err := newServer(cfg.Listeners, db, peerDB, txPool,
		activeNetParams.Params, cfg.DataDir)
	if err != nil {
		// We may not have created the listeners, but it can't hurt to
		// name them anyway.
		embdLog.Errorf("Unable to start server on %v: %v", cfg.Listeners,
			err)
		return err
	}
	defer func() {
		embdLog.Infof("Gracefully shutting down the server...")
		server.Stop()
		server.WaitForShutdown()
		srvrLog.Infof("Server shutdown complete")
	}()
	server.Start()
	if serverChan != nil {
		serverChan <- server
	}

	// Wait until the interrupt signal is received from an OS signal or
	// shutdown is requested through one of the subsystems.
	<-interrupt
	return nil
}

// chainDbPath returns the path to the chain state database given a database
// type.
func chainDbPath(dbType string) string {
	// The database name is based on the database type so switching
	// backends does not silently reuse an incompatible store.
	dbName := chainDbName + "_" + dbType
	return filepath.Join(cfg.DataDir, dbName)
}

// loadChainDB loads (or creates when needed) the chain state database taking
// into account the selected database backend.
func loadChainDB() (database.DB, error) {
	dbPath := chainDbPath(cfg.DbType)
	embdLog.Infof("Loading chain state database from '%s'", dbPath)
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

	embdLog.Info("Chain state database loaded")
	return db, nil
}

func main() {
	// If GOGC is not explicitly set, override GC percent.
	if os.Getenv("GOGC") == "" {
		// Message processing and mempool admission can cause bursty
		// allocations.  This limits the garbage collector from
		// excessively overallocating during bursts.
		debug.SetGCPercent(10)
	}

	// Up some limits.
	if err := limits.SetLimits(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set limits: %v\n", err)
		os.Exit(1)
	}

	// Work around defer not working after os.Exit()
	if err := emberdMain(nil); err != nil {
		os.Exit(1)
	}
}
