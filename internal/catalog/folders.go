package catalog

import (
	"strings"

	"github.com/zahid0/audio-app/internal/storage"
)

// FolderFilter is an allow-set of folder names. The zero value allows every folder.
type FolderFilter struct {
	allow map[string]struct{}
}

// NewFolderFilter builds a filter from names; blank names are ignored.
func NewFolderFilter(names []string) FolderFilter {
	f := FolderFilter{}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if f.allow == nil {
			f.allow = make(map[string]struct{})
		}
		f.allow[n] = struct{}{}
	}
	return f
}

// Empty reports whether the filter allows everything.
func (f FolderFilter) Empty() bool { return len(f.allow) == 0 }

// Allows reports whether a folder named name is visible.
func (f FolderFilter) Allows(name string) bool {
	if f.Empty() {
		return true
	}
	_, ok := f.allow[name]
	return ok
}

// Apply returns the visible folders in listing order.
func (f FolderFilter) Apply(folders []storage.Entry) []storage.Entry {
	if f.Empty() {
		return folders
	}
	visible := make([]storage.Entry, 0, len(f.allow))
	for _, folder := range folders {
		if f.Allows(folder.Name) {
			visible = append(visible, folder)
		}
	}
	return visible
}

// folderSnapshot is an immutable view of the visible folders. A refresh builds a
// new snapshot and swaps it in whole.
type folderSnapshot struct {
	list []storage.Entry
	byID map[string]string
}

func newFolderSnapshot(folders []storage.Entry) *folderSnapshot {
	s := &folderSnapshot{
		list: folders,
		byID: make(map[string]string, len(folders)),
	}
	for _, f := range folders {
		s.byID[f.ID] = f.Name
	}
	return s
}
