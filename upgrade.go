// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"os"
	"path/filepath"
)

// dirEmpty returns whether or not the specified directory path is empty.
func dirEmpty(dirPath string) (bool, error) {
	f, err := os.Open(dirPath)
	if err != nil {
		return false, err
	}
	defer f.Close()

	// Read the names of a max of one entry from the directory.  When the
	// directory is empty, an io.EOF error will be returned, so allow it.
	names, err := f.Readdirnames(1)
	if err != nil && err != io.EOF {
		return false, err
	}

	return len(names) == 0, nil
}

// oldEmberdHomeDir returns the OS specific home directory emberd used prior
// to version 0.2.0.  This has since been replaced with btcutil.AppDataDir,
// but this function is still provided for the automatic upgrade path.
func oldEmberdHomeDir() string {
	// Search for Windows APPDATA first.  This won't exist on POSIX OSes.
	appData := os.Getenv("APPDATA")
	if appData != "" {
		return filepath.Join(appData, "emberd")
	}

	// Fall back to standard HOME directory that works for most POSIX OSes.
	home := os.Getenv("HOME")
	if home != "" {
		return filepath.Join(home, ".emberd")
	}

	// In the worst case, use the current directory.
	return "."
}

// upgradeDataPaths moves the application data from its location prior to
// emberd version 0.2.0 to its new location.  Before 0.2.0 the peer and
// mempool databases lived directly in the home directory with no per-network
// namespacing.
func upgradeDataPaths() error {
	// No need to migrate if the old and new home paths are the same.
	oldHomePath := oldEmberdHomeDir()
	newHomePath := defaultHomeDir
	if oldHomePath == newHomePath {
		return nil
	}

	// Only migrate if the old path exists and the new one doesn't.
	if fileExists(oldHomePath) && !fileExists(newHomePath) {
		// Create the new path.
		embdLog.Infof("Migrating application home path from '%s' to "+
			"'%s'", oldHomePath, newHomePath)
		err := os.MkdirAll(newHomePath, 0700)
		if err != nil {
			return err
		}

		// Move the old databases into the per-network data directory
		// they live in as of 0.2.0.  Old versions only supported the
		// main network.
		dataDir := filepath.Join(newHomePath, defaultDataDirname,
			mainNetParams.Name)
		err = os.MkdirAll(dataDir, 0700)
		if err != nil {
			return err
		}
		for _, dbName := range []string{peerDbName, mempoolDbName} {
			oldDbPath := filepath.Join(oldHomePath, dbName)
			if !fileExists(oldDbPath) {
				continue
			}
			newDbPath := filepath.Join(dataDir, dbName)
			err := os.Rename(oldDbPath, newDbPath)
			if err != nil {
				return err
			}
		}

		// Remove the old config if it exists.
		oldConfPath := filepath.Join(oldHomePath, defaultConfigFilename)
		if fileExists(oldConfPath) {
			err := os.Remove(oldConfPath)
			if err != nil {
				return err
			}
		}

		// Remove the old home if it is empty or show a warning if not.
		ohpEmpty, err := dirEmpty(oldHomePath)
		if err != nil {
			return err
		}
		if ohpEmpty {
			err := os.Remove(oldHomePath)
			if err != nil {
				return err
			}
		} else {
			embdLog.Warnf("Not removing '%s' since it contains "+
				"files not created by this application.  You "+
				"may want to manually move them or delete "+
				"them.", oldHomePath)
		}
	}

	return nil
}

// doUpgrades performs upgrades to emberd as new versions require it.
func doUpgrades() error {
	return upgradeDataPaths()
}
