package storage

import (
	"cmp"
	"path"
	"slices"
	"strings"
	"time"
)

// Flat object stores (S3, GCS, Azure Blob) have no folders. The object-store
// backends treat each top-level key prefix ending in "/" as a folder and each
// non-marker key as a file.

// ObjectInfo is the subset of object metadata the object-store backends list.
type ObjectInfo struct {
	Key          string
	LastModified time.Time
}

// FolderPrefix returns the key prefix for a folder id; "" lists the whole bucket.
func FolderPrefix(folderID string) string {
	if folderID == "" {
		return ""
	}
	return strings.TrimSuffix(folderID, "/") + "/"
}

// FolderFromPrefix turns a delimiter listing's common prefix ("Lectures/") into
// a folder entry.
func FolderFromPrefix(prefix string) Entry {
	name := strings.TrimSuffix(prefix, "/")
	return Entry{ID: name, Name: name}
}

// FilesFromObjects converts a listing into file entries ordered newest first,
// dropping directory marker keys. Objects with equal timestamps keep listing order.
func FilesFromObjects(objs []ObjectInfo) []Entry {
	files := slices.DeleteFunc(slices.Clone(objs), func(o ObjectInfo) bool {
		return o.Key == "" || strings.HasSuffix(o.Key, "/")
	})
	slices.SortStableFunc(files, func(a, b ObjectInfo) int {
		return cmp.Compare(b.LastModified.UnixNano(), a.LastModified.UnixNano())
	})

	entries := make([]Entry, len(files))
	for i, o := range files {
		entries[i] = Entry{ID: o.Key, Name: path.Base(o.Key)}
	}
	return entries
}

// MatchNames returns the names of entries containing query, case-insensitively.
func MatchNames(entries []Entry, query string) []string {
	needle := strings.ToLower(query)
	var names []string
	for _, e := range entries {
		if strings.Contains(strings.ToLower(e.Name), needle) {
			names = append(names, e.Name)
		}
	}
	return names
}
