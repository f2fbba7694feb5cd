// Package iana holds the closed IANA registries referenced by metalink
// documents: Hash Function Textual Names and Operating System Names.
package iana

import (
	"encoding/xml"
	"errors"
	"fmt"
)

var (
	ErrUnknownHashName = errors.New("unknown hash function textual name")
	ErrUnknownOSName   = errors.New("unknown operating system name")
)

// HashName is an entry of the Hash Function Textual Names registry.
// The numeric order ranks digest strength, weakest first.
type HashName int

const (
	HashMD2 HashName = iota + 1
	HashMD5
	HashSHA1
	HashSHA224
	HashSHA256
	HashSHA384
	HashSHA512
	HashSHAKE128
	HashSHAKE256
)

var hashNameStrings = []string{
	HashMD2:      "md2",
	HashMD5:      "md5",
	HashSHA1:     "sha-1",
	HashSHA224:   "sha-224",
	HashSHA256:   "sha-256",
	HashSHA384:   "sha-384",
	HashSHA512:   "sha-512",
	HashSHAKE128: "shake128",
	HashSHAKE256: "shake256",
}

var hashNames = func() map[string]HashName {
	m := make(map[string]HashName, len(hashNameStrings))
	for i, s := range hashNameStrings {
		if s != "" {
			m[s] = HashName(i)
		}
	}
	return m
}()

func ParseHashName(s string) (HashName, error) {
	if h, ok := hashNames[s]; ok {
		return h, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownHashName, s)
}

func (h HashName) String() string {
	if h >= HashMD2 && h <= HashSHAKE256 {
		return hashNameStrings[h]
	}
	return fmt.Sprintf("HashName(%d)", int(h))
}

// StrongerThan reports whether h ranks above o in the registry ordering.
func (h HashName) StrongerThan(o HashName) bool {
	return h > o
}

func (h *HashName) UnmarshalXMLAttr(attr xml.Attr) error {
	v, err := ParseHashName(attr.Value)
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func (h HashName) MarshalYAML() (any, error) {
	return h.String(), nil
}
