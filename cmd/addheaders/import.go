// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/embersuite/emberd/chaincfg/chainhash"
	"github.com/embersuite/emberd/chainstate"
)

// headerRecord is a single entry of the header input file.
type headerRecord struct {
	height uint64
	hash   chainhash.Hash
}

// importResults houses the stats and result as an import operation.
type importResults struct {
	headersProcessed int64
	headersImported  int64
	err              error
}

// headerImporter houses information about an ongoing import from a burnchain
// header file to the header index.
type headerImporter struct {
	index              *chainstate.HeaderIndex
	r                  io.Reader
	processQueue       chan *headerRecord
	doneChan           chan bool
	errChan            chan error
	quit               chan struct{}
	wg                 sync.WaitGroup
	headersProcessed   int64
	headersImported    int64
	receivedLogHeaders int64
	lastHeight         uint64
	lastLogTime        time.Time
}

// readHeader reads the next header record from the input file.
//
// The header file format is:
//
//	<network> <block height> <header hash>
//
// with the network and height encoded little endian.
func (hi *headerImporter) readHeader() (*headerRecord, error) {
	var net uint32
	err := binary.Read(hi.r, binary.LittleEndian, &net)
	if err != nil {
		if err != io.EOF {
			return nil, err
		}

		// No record and no error means there are no more headers to
		// read.
		return nil, nil
	}
	if net != uint32(activeNetParams.Net) {
		return nil, fmt.Errorf("network mismatch -- got %x, want %x",
			net, uint32(activeNetParams.Net))
	}

	var rec headerRecord
	if err := binary.Read(hi.r, binary.LittleEndian, &rec.height); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(hi.r, rec.hash[:]); err != nil {
		return nil, err
	}

	return &rec, nil
}

// processHeader potentially imports the header into the index.  Headers that
// are already indexed with the same hash are skipped.  A differing hash at an
// indexed height overwrites the entry, which is how a burnchain reorg in the
// input file is applied.  Returns whether the header was imported along with
// any potential errors.
func (hi *headerImporter) processHeader(rec *headerRecord) (bool, error) {
	existing, err := hi.index.HashAt(rec.height)
	if err != nil {
		return false, err
	}
	if existing != nil && *existing == rec.hash {
		return false, nil
	}

	if err := hi.index.PutHeader(rec.height, &rec.hash); err != nil {
		return false, err
	}

	return true, nil
}

// readHandler is the main handler for reading headers from the import file.
// This allows header processing to take place in parallel with header reads.
// It must be run as a goroutine.
func (hi *headerImporter) readHandler() {
out:
	for {
		// Read the next record from the file and if anything goes wrong
		// notify the status handler with the error and bail.
		rec, err := hi.readHeader()
		if err != nil {
			hi.errChan <- fmt.Errorf("error reading from input "+
				"file: %v", err.Error())
			break out
		}

		// A nil record with no error means we're done.
		if rec == nil {
			break out
		}

		// Send the record or quit if we've been signalled to exit by
		// the status handler due to an error elsewhere.
		select {
		case hi.processQueue <- rec:
		case <-hi.quit:
			break out
		}
	}

	// Close the processing channel to signal no more headers are coming.
	close(hi.processQueue)
	hi.wg.Done()
}

// logProgress logs header progress as an information message.  In order to
// prevent spam, it limits logging to one message every cfg.Progress seconds
// with duration and totals included.
func (hi *headerImporter) logProgress() {
	hi.receivedLogHeaders++

	now := time.Now()
	duration := now.Sub(hi.lastLogTime)
	if duration < time.Second*time.Duration(cfg.Progress) {
		return
	}

	// Truncate the duration to 10s of milliseconds.
	durationMillis := int64(duration / time.Millisecond)
	tDuration := 10 * time.Millisecond * time.Duration(durationMillis/10)

	// Log information about new header height.
	headerStr := "headers"
	if hi.receivedLogHeaders == 1 {
		headerStr = "header"
	}
	log.Infof("Processed %d %s in the last %s (height %d)",
		hi.receivedLogHeaders, headerStr, tDuration, hi.lastHeight)

	hi.receivedLogHeaders = 0
	hi.lastLogTime = now
}

// processHandler is the main handler for processing headers.  This allows
// header processing to take place in parallel with header reads from the
// import file.  It must be run as a goroutine.
func (hi *headerImporter) processHandler() {
out:
	for {
		select {
		case rec, ok := <-hi.processQueue:
			// We're done when the channel is closed.
			if !ok {
				break out
			}

			hi.headersProcessed++
			hi.lastHeight = rec.height
			imported, err := hi.processHeader(rec)
			if err != nil {
				hi.errChan <- err
				break out
			}

			if imported {
				hi.headersImported++
			}

			hi.logProgress()

		case <-hi.quit:
			break out
		}
	}
	hi.wg.Done()
}

// statusHandler waits for updates from the import operation and notifies the
// passed doneChan with the results of the import.  It also causes all
// goroutines to exit if an error is reported from any of them.
func (hi *headerImporter) statusHandler(resultsChan chan *importResults) {
	select {
	// An error from either of the goroutines means we're done so signal
	// caller with the error and signal all goroutines to quit.
	case err := <-hi.errChan:
		resultsChan <- &importResults{
			headersProcessed: hi.headersProcessed,
			headersImported:  hi.headersImported,
			err:              err,
		}
		close(hi.quit)

	// The import finished normally.
	case <-hi.doneChan:
		resultsChan <- &importResults{
			headersProcessed: hi.headersProcessed,
			headersImported:  hi.headersImported,
			err:              nil,
		}
	}
}

// Import is the core function which handles importing the headers from the
// file associated with the header importer to the index.  It returns a
// channel on which the results will be returned when the operation has
// completed.
func (hi *headerImporter) Import() chan *importResults {
	// Start up the read and process handling goroutines.  This setup
	// allows headers to be read from disk in parallel while being
	// processed.
	hi.wg.Add(2)
	go hi.readHandler()
	go hi.processHandler()

	// Wait for the import to finish in a separate goroutine and signal
	// the status handler when done.
	go func() {
		hi.wg.Wait()
		hi.doneChan <- true
	}()

	// Start the status handler and return the result channel that it will
	// send the results on when the import is done.
	resultChan := make(chan *importResults)
	go hi.statusHandler(resultChan)
	return resultChan
}

// newHeaderImporter returns a new importer for the provided file reader and
// header index.
func newHeaderImporter(index *chainstate.HeaderIndex, r io.Reader) *headerImporter {
	return &headerImporter{
		index:        index,
		r:            r,
		processQueue: make(chan *headerRecord, 64),
		doneChan:     make(chan bool),
		errChan:      make(chan error),
		quit:         make(chan struct{}),
		lastLogTime:  time.Now(),
	}
}
