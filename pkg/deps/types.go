package deps

import (
	"fmt"
	"strconv"
	"strings"
)

// FileIdentifier names one downloadable file of one project. Both ids are
// needed: file ids are only unique within their project.
type FileIdentifier struct {
	ProjectID int64 `json:"projectId" yaml:"projectId" bson:"project_id"`
	FileID    int64 `json:"fileId" yaml:"fileId" bson:"file_id"`
}

// String renders the identifier as "project:file".
func (id FileIdentifier) String() string {
	return fmt.Sprintf("%d:%d", id.ProjectID, id.FileID)
}

// Key returns a stable lock/cache key for the identifier.
func (id FileIdentifier) Key() string {
	return "file:" + id.String()
}

// Edge records that a file declares a dependency on an exact file of another
// project. Edges are unique by all four fields.
type Edge struct {
	ProjectID           int64 `json:"projectId" yaml:"projectId" bson:"project_id"`
	FileID              int64 `json:"fileId" yaml:"fileId" bson:"file_id"`
	DependencyProjectID int64 `json:"dependencyProjectId" yaml:"dependencyProjectId" bson:"dependency_project_id"`
	DependencyFileID    int64 `json:"dependencyFileId" yaml:"dependencyFileId" bson:"dependency_file_id"`
}

// File returns the identifier of the declaring file.
func (e Edge) File() FileIdentifier {
	return FileIdentifier{ProjectID: e.ProjectID, FileID: e.FileID}
}

// Dependency returns the identifier of the file depended upon.
func (e Edge) Dependency() FileIdentifier {
	return FileIdentifier{ProjectID: e.DependencyProjectID, FileID: e.DependencyFileID}
}

// FileResolution holds the number of dependencies a file's manifest declared
// at its last successful parse. A file is fully resolved only when the store
// holds exactly DependencyCount edges for it.
type FileResolution struct {
	ProjectID       int64 `json:"projectId" bson:"project_id"`
	FileID          int64 `json:"fileId" bson:"file_id"`
	DependencyCount int   `json:"dependencyCount" bson:"dependency_count"`
}

// SkippedFile is a retry queue entry for a file whose resolution did not
// complete. Timestamp is unix seconds.
type SkippedFile struct {
	ProjectID int64      `json:"projectId" yaml:"projectId" bson:"project_id"`
	FileID    int64      `json:"fileId" yaml:"fileId" bson:"file_id"`
	Reason    SkipReason `json:"reason" yaml:"reason" bson:"reason"`
	Timestamp int64      `json:"timestamp" yaml:"timestamp" bson:"timestamp"`
	URL       string     `json:"url" yaml:"url" bson:"url"`
}

// ID returns the identifier of the skipped file.
func (s SkippedFile) ID() FileIdentifier {
	return FileIdentifier{ProjectID: s.ProjectID, FileID: s.FileID}
}

// FileName returns the last path segment of the stored URL.
func (s SkippedFile) FileName() string {
	u := s.URL
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		u = u[:i]
	}
	return u[strings.LastIndex(u, "/")+1:]
}

// SkippedFilter narrows [Store.ListSkipped]. Nil fields match everything.
type SkippedFilter struct {
	Reason    *SkipReason
	Timestamp *int64
}

// Matches reports whether s passes the filter.
func (f SkippedFilter) Matches(s SkippedFile) bool {
	if f.Reason != nil && s.Reason != *f.Reason {
		return false
	}
	if f.Timestamp != nil && s.Timestamp != *f.Timestamp {
		return false
	}
	return true
}

// SkipReason classifies why a file was queued for retry. The integer values
// are persisted and must not change.
type SkipReason int

const (
	ZeroDownloads             SkipReason = 0
	DownloadTooLarge          SkipReason = 2 // legacy whole-file download path
	DownloadError             SkipReason = 3
	FileParsingError          SkipReason = 4
	ModDistributionNotAllowed SkipReason = 5
)

var skipReasonNames = map[SkipReason]string{
	ZeroDownloads:             "ZERO_DOWNLOADS",
	DownloadTooLarge:          "DOWNLOAD_TOO_LARGE",
	DownloadError:             "DOWNLOAD_ERROR",
	FileParsingError:          "FILE_PARSING_ERROR",
	ModDistributionNotAllowed: "MOD_DISTRIBUTION_NOT_ALLOWED",
}

// SkipReasons lists every reason in persisted-value order.
var SkipReasons = []SkipReason{
	ZeroDownloads,
	DownloadTooLarge,
	DownloadError,
	FileParsingError,
	ModDistributionNotAllowed,
}

// String returns the upper-case reason name.
func (r SkipReason) String() string {
	if name, ok := skipReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("SkipReason(%d)", int(r))
}

// Valid reports whether r is one of the known reasons.
func (r SkipReason) Valid() bool {
	_, ok := skipReasonNames[r]
	return ok
}

// MarshalText encodes the reason by name.
func (r SkipReason) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid skip reason %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText accepts a reason name or its integer value.
func (r *SkipReason) UnmarshalText(text []byte) error {
	parsed, err := ParseSkipReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseSkipReason parses a reason name (case-insensitive, "-" or "_"
// separated) or its persisted integer value.
func ParseSkipReason(s string) (SkipReason, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.Atoi(s); err == nil {
		if r := SkipReason(n); r.Valid() {
			return r, nil
		}
		return 0, fmt.Errorf("unknown skip reason %q", s)
	}
	norm := strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
	for r, name := range skipReasonNames {
		if name == norm {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown skip reason %q", s)
}

// Project is the subset of a catalog project record the engine needs.
type Project struct {
	ID                int64  `json:"id" yaml:"id"`
	Name              string `json:"name" yaml:"name"`
	Slug              string `json:"slug" yaml:"slug"`
	AllowDistribution bool   `json:"allowDistribution" yaml:"allowDistribution"`
	DownloadCount     int64  `json:"downloadCount" yaml:"downloadCount"`
}

// File is one downloadable file of a project as listed by the catalog.
// DownloadURL may be empty when the catalog withholds it.
type File struct {
	ProjectID     int64  `json:"modId"`
	ID            int64  `json:"id"`
	FileName      string `json:"fileName"`
	DownloadURL   string `json:"downloadUrl"`
	DownloadCount int64  `json:"downloadCount"`
}

// Identifier returns the file's identifier.
func (f File) Identifier() FileIdentifier {
	return FileIdentifier{ProjectID: f.ProjectID, FileID: f.ID}
}

// FileState is the per-file resolution state reported to observers.
type FileState string

const (
	StateAlreadyResolved FileState = "already_resolved"
	StateFilteredOut     FileState = "filtered_out"
	StatePersisted       FileState = "persisted"
	StateFetchFailed     FileState = "fetch_failed"
	StateParseFailed     FileState = "parse_failed"
	StateLockLost        FileState = "lock_lost"
)

// Succeeded reports whether the state counts the file as resolved.
func (s FileState) Succeeded() bool {
	return s == StateAlreadyResolved || s == StatePersisted
}
