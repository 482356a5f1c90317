// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package sampleconfig provides a single constant that contains the contents of
the sample configuration file for emberd.  This is provided for tools that
perform automatic configuration and would like to ensure the generated
configuration file not only includes the specifically configured values, but
also provides samples of other configuration options.
*/
package sampleconfig
