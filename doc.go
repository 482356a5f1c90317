// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
emberd is a peer daemon for the ember network written in Go.

emberd maintains the peer-to-peer overlay: it authenticates neighbors,
exchanges neighbor sets, relays transactions, stages pushed blocks for the
block processor, and keeps its unconfirmed transaction pool synchronized with
the rest of the network.  It does not validate blocks itself; the burnchain
processor feeding the header index is a separate component.

Usage:

	emberd [OPTIONS]

Application Options:

	-V, --version         Display version information and exit
	-C, --configfile=     Path to configuration file
	-b, --datadir=        Directory to store data
	    --logdir=         Directory to log output.
	-a, --addpeer=        Add a peer to connect with at startup
	    --connect=        Connect only to the specified peers at startup
	    --nolisten        Disable listening for incoming connections -- NOTE:
	                      Listening is automatically disabled if the --connect
	                      or --proxy options are used without also specifying
	                      listen interfaces via --listen
	    --listen=         Add an interface/port to listen for connections
	                      (default all interfaces port: 20444, testnet: 30444)
	    --maxpeers=       Max number of inbound and outbound peers
	    --nobanning       Disable banning of misbehaving peers
	    --banduration=    How long to ban misbehaving peers.  Valid time units
	                      are {s, m, h}.  Minimum 1 second
	    --banthreshold=   Maximum allowed ban score before disconnecting and
	                      banning misbehaving peers.
	    --nodnsseed       Disable DNS seeding for peers
	    --externalip=     Advertise this ip to peers as the node's reachable
	                      address
	    --proxy=          Connect via SOCKS5 proxy (eg. 127.0.0.1:9050)
	    --proxyuser=      Username for proxy server
	    --proxypass=      Password for proxy server
	    --testnet         Use the test network
	    --simnet          Use the simulation test network
	    --dataurl=        HTTP URL of this node's data endpoint, advertised to
	                      peers during the handshake
	    --dbtype=         Database backend to use for the burnchain state
	    --profile=        Enable HTTP profiling on given port -- NOTE port
	                      must be between 1024 and 65536
	    --cpuprofile=     Write CPU profile to the specified file
	-d, --debuglevel=     Logging level for all subsystems {trace, debug,
	                      info, warn, error, critical} -- You may also specify
	                      <subsystem>=<level>,<subsystem2>=<level>,... to set
	                      the log level for individual subsystems -- Use show
	                      to list available subsystems
	    --wslisten=       Add an interface/port to serve websocket event
	                      subscribers on

Help Options:

	-h, --help            Show this help message
*/
package main
