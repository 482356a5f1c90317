// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package connmgr

import (
	mrand "math/rand"
	"net"
	"strconv"
	"time"

	"github.com/embersuite/emberd/chaincfg"
)

// OnSeed is the signature of the callback function which is invoked when
// DNS seeding is successful.  Seeded addresses carry no node identity; the
// node key is learned when the first handshake on a dialed connection
// completes.
type OnSeed func(addrs []net.Addr)

// LookupFunc is the signature of the DNS lookup function.
type LookupFunc func(string) ([]net.IP, error)

// SeedFromDNS uses DNS seeding to discover dialable peer addresses for the
// given network.  Each seed host resolves on its own goroutine and hands
// its results to seedFn as TCP addresses on the network's default port.
func SeedFromDNS(chainParams *chaincfg.Params, lookupFn LookupFunc,
	seedFn OnSeed) {

	port, err := strconv.Atoi(chainParams.DefaultPort)
	if err != nil {
		log.Errorf("Invalid default port %q for network %s",
			chainParams.DefaultPort, chainParams.Name)
		return
	}

	for _, host := range chainParams.Seeds {
		go func(host string) {
			seedIPs, err := lookupFn(host)
			if err != nil {
				log.Infof("DNS discovery failed on seed %s: %v", host, err)
				return
			}

			numPeers := len(seedIPs)
			log.Infof("%d addresses found from DNS seed %s", numPeers,
				host)
			if numPeers == 0 {
				return
			}

			// Shuffle so every node does not hammer the first record
			// the seed returns.
			randSource := mrand.New(mrand.NewSource(time.Now().UnixNano()))
			randSource.Shuffle(numPeers, func(i, j int) {
				seedIPs[i], seedIPs[j] = seedIPs[j], seedIPs[i]
			})

			addrs := make([]net.Addr, numPeers)
			for i, ip := range seedIPs {
				addrs[i] = &net.TCPAddr{IP: ip, Port: port}
			}

			seedFn(addrs)
		}(host)
	}
}
