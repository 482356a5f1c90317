// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

// FileContents is a string containing the commented example config for emberd.
const FileContents = `[Application Options]

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------

; The directory to store data such as the burnchain header index, the mempool,
; and peer addresses.  The default is ~/.emberd/data on POSIX OSes,
; $LOCALAPPDATA/Emberd/data on Windows, and
; ~/Library/Application Support/Emberd/data on macOS.  Environment variables
; are expanded so they may be used.  NOTE: Windows environment variables are
; typically %VARIABLE%, but they must be accessed with $VARIABLE here.
; datadir=~/.emberd/data                            ; Unix
; datadir=$LOCALAPPDATA/Emberd/data                 ; Windows
; datadir=~/Library/Application Support/Emberd/data ; macOS

; The database backend for the burnchain state.  The default is ldb
; (leveldb).  pdb (pebble) is also supported.
; dbtype=ldb


; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------

; Use testnet.
; testnet=1

; Use simnet.
; simnet=1

; Connect via a SOCKS5 proxy.  NOTE: Specifying a proxy will disable listening
; for incoming connections unless listen addresses are provided via the
; 'listen' option.
; proxy=127.0.0.1:9050
; proxyuser=
; proxypass=

; Use Universal Plug and Play (UPnP) to automatically open the listen port
; and obtain the external IP address from supporting devices is not
; implemented.  Advertise a reachable address with externalip instead.
; externalip=1.2.3.4

; ------------------------------------------------------------------------------
; Peering settings
; ------------------------------------------------------------------------------

; Add persistent peers to connect to as desired.  One peer per line.
; You may specify each IP address with or without a port.  The default port
; will be added automatically if one is not specified here.
; addpeer=10.0.0.2
; addpeer=10.0.0.3:20444

; Add interfaces/ports to listen for peer connections.  One listen address per
; line.  NOTE: The default port is modified by some options such as 'testnet',
; so it is recommended to not specify a port and allow a proper default to be
; chosen unless you have a specific reason to do otherwise.
; All interfaces on default port (this is the default):
;  listen=
; All ipv4 interfaces on default port:
;  listen=0.0.0.0
; All ipv6 interfaces on default port:
;   listen=::
; All interfaces on port 20444:
;   listen=:20444

; Specify the maximum number of inbound and outbound peers.
; maxpeers=125

; Disable DNS seeding for peers.  By default, when emberd starts and it
; determines there are no peers to connect to, it will use DNS queries to seed
; the peer database.
; nodnsseed=1

; Disable listening for incoming connections.
; nolisten=1

; How long to ban misbehaving peers.  Valid time units are {s, m, h}.
; Minimum 1 second.
; banduration=24h
; banduration=11h30m15s

; Maximum allowed ban score before disconnecting and banning misbehaving
; peers.
; banthreshold=100

; Disable banning of misbehaving peers.
; nobanning=1

; The HTTP URL of this node's data endpoint, advertised to peers during the
; handshake.
; dataurl=http://my-node.example.com:20443


; ------------------------------------------------------------------------------
; Event notification settings
; ------------------------------------------------------------------------------

; Serve websocket event subscribers on the given interface/port.  Events
; include accepted transactions and peer connect/ban notices.
; wslisten=127.0.0.1:20443


; ------------------------------------------------------------------------------
; Debug
; ------------------------------------------------------------------------------

; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use emberd --debuglevel=show to list
; available subsystems.
; debuglevel=info

; The port used to listen for HTTP profile requests.  The profile server will
; be disabled if this option is not specified.  The profile information can be
; accessed at http://localhost:<profileport>/debug/pprof once running.
; profile=6061
`
