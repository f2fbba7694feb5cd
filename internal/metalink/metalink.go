// Package metalink implements the RFC 5854 document model that melo
// manifests are written in.
package metalink

import (
	"encoding/xml"
	"fmt"
	"mime"
	"os"
	"strings"
	"time"

	"github.com/tanq16/melo/internal/iana"
)

type Metalink struct {
	XMLName   xml.Name   `xml:"metalink"`
	Generator string     `xml:"generator"`
	Origin    *Origin    `xml:"origin"`
	Published *Timestamp `xml:"published"`
	Updated   *Timestamp `xml:"updated"`
	Files     []File     `xml:"file"`
}

type Origin struct {
	Dynamic bool   `xml:"dynamic,attr"`
	URL     string `xml:",chardata"`
}

// Timestamp is an RFC 3339 element value.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var s string
	if err := d.DecodeElement(&s, &start); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	t.Time = parsed
	return nil
}

type File struct {
	Name        string        `xml:"name,attr"`
	Copyright   string        `xml:"copyright"`
	Description string        `xml:"description"`
	Identity    string        `xml:"identity"`
	Languages   []string      `xml:"language"`
	Logo        string        `xml:"logo"`
	Hashes      []Hash        `xml:"hash"`
	MetaURLs    []MetaURL     `xml:"metaurl"`
	OSes        []iana.OSName `xml:"os"`
	Pieces      *Pieces       `xml:"pieces"`
	Publisher   *Publisher    `xml:"publisher"`
	Signature   *Signature    `xml:"signature"`
	Size        *int64        `xml:"size"`
	URLs        []FileURL     `xml:"url"`
	Version     string        `xml:"version"`
}

type Hash struct {
	Type  *iana.HashName `xml:"type,attr"`
	Value string         `xml:",chardata"`
}

// Typed returns the declared registry algorithm, when there is one.
func (h Hash) Typed() (iana.HashName, bool) {
	if h.Type == nil {
		return 0, false
	}
	return *h.Type, true
}

type Pieces struct {
	Type   iana.HashName `xml:"type,attr"`
	Length int64         `xml:"length,attr"`
	Hashes []string      `xml:"hash"`
}

type Publisher struct {
	Name string `xml:"name,attr"`
	URL  string `xml:"url,attr"`
}

type Signature struct {
	MediaType string `xml:"mediatype,attr"`
	Value     string `xml:",chardata"`
}

type MetaURL struct {
	Priority  int    `xml:"priority,attr"`
	MediaType string `xml:"mediatype,attr"`
	Name      string `xml:"name,attr"`
	URL       string `xml:",chardata"`
}

type FileURL struct {
	Priority int    `xml:"priority,attr"`
	Location string `xml:"location,attr"`
	URL      string `xml:",chardata"`
}

// Load reads and parses the manifest at path.
func Load(path string) (*Metalink, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return Parse(data)
}

// Parse decodes a metalink document and validates it against the parts
// of RFC 5854 that melo depends on.
func Parse(data []byte) (*Metalink, error) {
	var m Metalink
	if err := xml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse metalink: %w", err)
	}
	m.normalize()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid metalink: %w", err)
	}
	return &m, nil
}

func (m *Metalink) normalize() {
	m.Generator = strings.TrimSpace(m.Generator)
	if m.Origin != nil {
		m.Origin.URL = strings.TrimSpace(m.Origin.URL)
	}
	for i := range m.Files {
		f := &m.Files[i]
		f.Copyright = strings.TrimSpace(f.Copyright)
		f.Description = strings.TrimSpace(f.Description)
		f.Identity = strings.TrimSpace(f.Identity)
		f.Logo = strings.TrimSpace(f.Logo)
		f.Version = strings.TrimSpace(f.Version)
		for j := range f.Languages {
			f.Languages[j] = strings.TrimSpace(f.Languages[j])
		}
		for j := range f.Hashes {
			f.Hashes[j].Value = strings.TrimSpace(f.Hashes[j].Value)
		}
		for j := range f.URLs {
			f.URLs[j].URL = strings.TrimSpace(f.URLs[j].URL)
		}
		for j := range f.MetaURLs {
			f.MetaURLs[j].URL = strings.TrimSpace(f.MetaURLs[j].URL)
		}
		if f.Pieces != nil {
			for j := range f.Pieces.Hashes {
				f.Pieces.Hashes[j] = strings.TrimSpace(f.Pieces.Hashes[j])
			}
		}
		if f.Signature != nil {
			f.Signature.Value = strings.TrimSpace(f.Signature.Value)
		}
	}
}

func (m *Metalink) validate() error {
	for i := range m.Files {
		if err := m.Files[i].validate(); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) validate() error {
	if f.Name == "" {
		return fmt.Errorf("file element requires a name")
	}
	// RFC 5854 forbids absolute paths and traversal in file names.
	if strings.HasPrefix(f.Name, "/") {
		return fmt.Errorf("file %q: name must be relative", f.Name)
	}
	for _, part := range strings.Split(f.Name, "/") {
		if part == ".." {
			return fmt.Errorf("file %q: name must not contain traversal", f.Name)
		}
	}
	if len(f.URLs) == 0 && len(f.MetaURLs) == 0 {
		return fmt.Errorf("file %q: requires at least one url or metaurl", f.Name)
	}
	if f.Size != nil && *f.Size < 0 {
		return fmt.Errorf("file %q: size must not be negative", f.Name)
	}
	for _, h := range f.Hashes {
		if h.Value == "" {
			return fmt.Errorf("file %q: hash element requires a value", f.Name)
		}
	}
	for _, u := range f.URLs {
		if u.URL == "" {
			return fmt.Errorf("file %q: url element requires a value", f.Name)
		}
		if err := validPriority(u.Priority); err != nil {
			return fmt.Errorf("file %q: %w", f.Name, err)
		}
		if u.Location != "" && !validLocation(u.Location) {
			return fmt.Errorf("file %q: location %q is not an ISO3166-1 alpha-2 code", f.Name, u.Location)
		}
	}
	for _, u := range f.MetaURLs {
		if u.URL == "" {
			return fmt.Errorf("file %q: metaurl element requires a value", f.Name)
		}
		if err := validPriority(u.Priority); err != nil {
			return fmt.Errorf("file %q: %w", f.Name, err)
		}
		if err := validMediaType(u.MediaType); err != nil {
			return fmt.Errorf("file %q: %w", f.Name, err)
		}
	}
	if f.Pieces != nil {
		if f.Pieces.Type == 0 {
			return fmt.Errorf("file %q: pieces element requires a type", f.Name)
		}
		if f.Pieces.Length <= 0 {
			return fmt.Errorf("file %q: pieces element requires a positive length", f.Name)
		}
		if len(f.Pieces.Hashes) == 0 {
			return fmt.Errorf("file %q: pieces element requires at least one hash", f.Name)
		}
		for _, h := range f.Pieces.Hashes {
			if h == "" {
				return fmt.Errorf("file %q: piece hash requires a value", f.Name)
			}
		}
	}
	return nil
}

func validPriority(p int) error {
	if p == 0 {
		return nil
	}
	if p < 1 || p > 999999 {
		return fmt.Errorf("priority %d must be between 1 and 999999", p)
	}
	return nil
}

func validLocation(s string) bool {
	if len(s) != 2 {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return false
		}
	}
	return true
}

func validMediaType(s string) error {
	if s == "" {
		return fmt.Errorf("metaurl element requires a mediatype")
	}
	if s == "torrent" {
		return nil
	}
	// mime.ParseMediaType accepts bare disposition tokens; a metaurl
	// mediatype has to be a full type/subtype pair.
	if !strings.Contains(s, "/") {
		return fmt.Errorf("metaurl mediatype %q is not a media type", s)
	}
	if _, _, err := mime.ParseMediaType(s); err != nil {
		return fmt.Errorf("metaurl mediatype %q: %w", s, err)
	}
	return nil
}
