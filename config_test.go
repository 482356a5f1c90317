// Copyright (c) 2024-2026 The embersuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"testing"
)

var (
	datadirRegexp = regexp.MustCompile(`(?m)^; datadir=`)
	dbtypeRegexp  = regexp.MustCompile(`(?m)^; dbtype=ldb$`)
)

// TestCreateDefaultConfigFile ensures a fresh install gets the commented
// sample configuration written to the requested path.
func TestCreateDefaultConfigFile(t *testing.T) {
	testpath := filepath.Join(t.TempDir(), "test.conf")

	err := createDefaultConfigFile(testpath)
	if err != nil {
		t.Fatalf("Failed to create a default config file: %v", err)
	}

	content, err := os.ReadFile(testpath)
	if err != nil {
		t.Fatalf("Failed to read generated default config file: %v", err)
	}

	if !datadirRegexp.Match(content) {
		t.Error("Could not find datadir in generated default config file.")
	}
	if !dbtypeRegexp.Match(content) {
		t.Error("Could not find dbtype in generated default config file.")
	}
}

// TestValidLogLevel ensures the supported log levels are accepted and
// everything else is rejected.
func TestValidLogLevel(t *testing.T) {
	tests := []struct {
		level string
		valid bool
	}{
		{"trace", true},
		{"debug", true},
		{"info", true},
		{"warn", true},
		{"error", true},
		{"critical", true},
		{"", false},
		{"INFO", false},
		{"verbose", false},
	}

	for _, test := range tests {
		if got := validLogLevel(test.level); got != test.valid {
			t.Errorf("validLogLevel(%q) = %v, want %v", test.level,
				got, test.valid)
		}
	}
}

// TestNormalizeAddresses ensures addresses get the default port applied when
// they carry none and that duplicates collapse to a single entry.
func TestNormalizeAddresses(t *testing.T) {
	tests := []struct {
		name  string
		addrs []string
		port  string
		want  []string
	}{
		{
			name:  "missing ports",
			addrs: []string{"10.0.0.1", "10.0.0.2"},
			port:  "20444",
			want:  []string{"10.0.0.1:20444", "10.0.0.2:20444"},
		},
		{
			name:  "explicit port kept",
			addrs: []string{"10.0.0.1:9000"},
			port:  "20444",
			want:  []string{"10.0.0.1:9000"},
		},
		{
			name:  "duplicates removed",
			addrs: []string{"10.0.0.1", "10.0.0.1:20444"},
			port:  "20444",
			want:  []string{"10.0.0.1:20444"},
		},
	}

	for _, test := range tests {
		got := normalizeAddresses(test.addrs, test.port)
		if !reflect.DeepEqual(got, test.want) {
			t.Errorf("%s: normalizeAddresses = %v, want %v",
				test.name, got, test.want)
		}
	}
}

// TestValidDbType ensures the registered database drivers are accepted and
// unknown backends are rejected.
func TestValidDbType(t *testing.T) {
	for _, dbType := range knownDbTypes {
		if !validDbType(dbType) {
			t.Errorf("validDbType(%q) = false, want true", dbType)
		}
	}
	if validDbType("bolt") {
		t.Error("validDbType(\"bolt\") = true, want false")
	}
}
