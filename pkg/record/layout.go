package record

import (
	"path/filepath"
	"strings"
)

// Fixed names inside a project directory.
const (
	ManifestFile   = "manifest.json"
	IndexFile      = "index.json"
	SchemasDir     = "schemas"
	IdempotencyDir = "idempotency"
	LockFile       = ".lock"
)

// ProjectDir returns the directory of project under the store root.
func ProjectDir(root, project string) string {
	return filepath.Join(root, project)
}

// KindDir returns the directory holding records of kind k for project.
func KindDir(root, project string, k Kind) string {
	return filepath.Join(root, project, k.Dir())
}

// Path returns the final path of a record.
func Path(root, project string, k Kind, id string) string {
	return filepath.Join(KindDir(root, project, k), k.FileName(id))
}

// IsRecordFile reports whether name is a final record file of kind k.
// Temp files start with "." and never match.
func IsRecordFile(k Kind, name string) bool {
	return strings.HasPrefix(name, k.Prefix()+"-") && strings.HasSuffix(name, ".json")
}

// IDFromFile extracts the record id from a file name of kind k.
func IDFromFile(k Kind, name string) string {
	return strings.TrimSuffix(strings.TrimPrefix(name, k.Prefix()+"-"), ".json")
}
