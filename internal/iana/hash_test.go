package iana

import (
	"errors"
	"testing"
)

func TestParseHashName(t *testing.T) {
	for _, name := range []string{
		"md2", "md5", "sha-1", "sha-224", "sha-256", "sha-384", "sha-512",
		"shake128", "shake256",
	} {
		h, err := ParseHashName(name)
		if err != nil {
			t.Fatalf("ParseHashName(%q): %v", name, err)
		}
		if h.String() != name {
			t.Errorf("round trip of %q gave %q", name, h.String())
		}
	}
}

func TestParseHashNameUnknown(t *testing.T) {
	for _, name := range []string{"", "sha256", "SHA-256", "crc32"} {
		if _, err := ParseHashName(name); !errors.Is(err, ErrUnknownHashName) {
			t.Errorf("ParseHashName(%q) = %v, want ErrUnknownHashName", name, err)
		}
	}
}

func TestHashNameStrength(t *testing.T) {
	ordered := []HashName{
		HashMD2, HashMD5, HashSHA1, HashSHA224, HashSHA256, HashSHA384,
		HashSHA512, HashSHAKE128, HashSHAKE256,
	}
	for i := 1; i < len(ordered); i++ {
		if !ordered[i].StrongerThan(ordered[i-1]) {
			t.Errorf("%s should rank above %s", ordered[i], ordered[i-1])
		}
		if ordered[i-1].StrongerThan(ordered[i]) {
			t.Errorf("%s should not rank above %s", ordered[i-1], ordered[i])
		}
	}
	if HashSHA256.StrongerThan(HashSHA256) {
		t.Error("a name should not rank above itself")
	}
}

func TestParseOSName(t *testing.T) {
	for _, name := range []string{"AEGIS", "LINUX", "MACOS", "OS/2", "WIN32", "XENIX"} {
		n, err := ParseOSName(name)
		if err != nil {
			t.Fatalf("ParseOSName(%q): %v", name, err)
		}
		if n.String() != name {
			t.Errorf("round trip of %q gave %q", name, n.String())
		}
	}
	if _, err := ParseOSName("linux"); !errors.Is(err, ErrUnknownOSName) {
		t.Errorf("lowercase name parsed, want ErrUnknownOSName, got %v", err)
	}
	if _, err := ParseOSName("TEMPLEOS"); !errors.Is(err, ErrUnknownOSName) {
		t.Errorf("unlisted name parsed, want ErrUnknownOSName, got %v", err)
	}
}

func TestOSNameListIntegrity(t *testing.T) {
	if len(osNameList) != len(osNames) {
		t.Fatalf("duplicate entries in registry table: %d listed, %d unique", len(osNameList), len(osNames))
	}
}
