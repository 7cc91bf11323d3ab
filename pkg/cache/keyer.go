package cache

import (
	"strconv"
	"strings"
)

// Keyer builds cache keys for catalog lookups.
type Keyer interface {
	// HTTPKey keys a raw response from one API namespace.
	HTTPKey(namespace, key string) string

	// ProjectKey keys a single project record.
	ProjectKey(source string, projectID int64) string

	// FilesKey keys the complete file listing of a project.
	FilesKey(source string, projectID int64) string
}

// DefaultKeyer produces readable keys such as "files:curseforge:238222".
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key scheme.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

func (DefaultKeyer) ProjectKey(source string, projectID int64) string {
	return join("project", source, strconv.FormatInt(projectID, 10))
}

func (DefaultKeyer) FilesKey(source string, projectID int64) string {
	return join("files", source, strconv.FormatInt(projectID, 10))
}

func join(parts ...string) string { return strings.Join(parts, ":") }
