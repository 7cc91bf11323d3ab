// Package manifest parses modpack manifest documents.
//
// A manifest is the manifest.json bundled at the root of a modpack archive.
// The only structural requirement is a top-level "files" array whose entries
// carry "projectID" and "fileID"; every other field is optional, so any
// manifest format version exposing that array is accepted.
//
//	m, err := manifest.ParseFile(path)
//	if errors.Is(err, manifest.ErrMissingFiles) {
//	    // queue for retry as a parsing error
//	}
//	for _, d := range m.Dependencies() {
//	    fmt.Println(d.ProjectID, d.FileID)
//	}
package manifest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileName is the archive entry holding the manifest.
const FileName = "manifest.json"

var (
	// ErrMissingFiles is returned when the document has no "files" array.
	ErrMissingFiles = errors.New("manifest has no files array")

	// ErrInvalidJSON is returned when the document is not a JSON object or an
	// entry of the files array is malformed.
	ErrInvalidJSON = errors.New("invalid manifest json")
)

// Manifest is a parsed modpack manifest.
type Manifest struct {
	Name            string     `json:"name,omitempty"`
	Version         string     `json:"version,omitempty"`
	Author          string     `json:"author,omitempty"`
	ManifestType    string     `json:"manifestType,omitempty"`
	ManifestVersion int        `json:"manifestVersion,omitempty"`
	Minecraft       *Minecraft `json:"minecraft,omitempty"`
	Overrides       string     `json:"overrides,omitempty"`
	Files           []FileRef  `json:"files"`
}

// Minecraft describes the game version a modpack targets.
type Minecraft struct {
	Version    string      `json:"version"`
	ModLoaders []ModLoader `json:"modLoaders,omitempty"`
}

// ModLoader is one loader entry of the minecraft block.
type ModLoader struct {
	ID      string `json:"id"`
	Primary bool   `json:"primary"`
}

// FileRef is one entry of the files array.
type FileRef struct {
	ProjectID int64 `json:"projectID"`
	FileID    int64 `json:"fileID"`
	Required  *bool `json:"required,omitempty"`
}

// Dependency is a (project, file) pair declared by a manifest.
type Dependency struct {
	ProjectID int64
	FileID    int64
}

// Dependencies returns the declared pairs in document order, duplicates
// included.
func (m *Manifest) Dependencies() []Dependency {
	out := make([]Dependency, 0, len(m.Files))
	for _, f := range m.Files {
		out = append(out, Dependency{ProjectID: f.ProjectID, FileID: f.FileID})
	}
	return out
}

// document mirrors Manifest but keeps "files" raw so a missing key can be
// told apart from an empty array.
type document struct {
	Name            string          `json:"name"`
	Version         string          `json:"version"`
	Author          string          `json:"author"`
	ManifestType    string          `json:"manifestType"`
	ManifestVersion int             `json:"manifestVersion"`
	Minecraft       *Minecraft      `json:"minecraft"`
	Overrides       string          `json:"overrides"`
	Files           json.RawMessage `json:"files"`
}

// Parse decodes a manifest from r.
func Parse(r io.Reader) (*Manifest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes decodes a manifest from data.
func ParseBytes(data []byte) (*Manifest, error) {
	// Some exporters write a UTF-8 byte order mark.
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if len(doc.Files) == 0 || bytes.Equal(bytes.TrimSpace(doc.Files), []byte("null")) {
		return nil, ErrMissingFiles
	}

	var files []FileRef
	if err := json.Unmarshal(doc.Files, &files); err != nil {
		return nil, fmt.Errorf("%w: files: %v", ErrInvalidJSON, err)
	}

	return &Manifest{
		Name:            doc.Name,
		Version:         doc.Version,
		Author:          doc.Author,
		ManifestType:    doc.ManifestType,
		ManifestVersion: doc.ManifestVersion,
		Minecraft:       doc.Minecraft,
		Overrides:       doc.Overrides,
		Files:           files,
	}, nil
}

// ParseFile reads and decodes the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}
