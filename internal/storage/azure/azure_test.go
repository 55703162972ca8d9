package azure

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/zahid0/audio-app/internal/config"
	"github.com/zahid0/audio-app/internal/storage"
)

type storedBlob struct {
	content      []byte
	lastModified time.Time
}

type blobStore struct {
	mu       sync.Mutex
	blobs    map[string]*storedBlob
	pageSize int
	lists    int
	ranges   []string
}

func (s *blobStore) put(name, content string, modified time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[name] = &storedBlob{content: []byte(content), lastModified: modified}
}

func writeBlobError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("x-ms-error-code", code)
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>%s</Code><Message>%s</Message></Error>`, code, code)
}

// list imitates List Blobs. Hierarchical listings return every prefix in one
// page; flat listings are paginated with the marker holding the next index.
func (s *blobStore) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	prefix := q.Get("prefix")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++

	var names []string
	for n := range s.blobs {
		if strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, `<?xml version="1.0" encoding="utf-8"?><EnumerationResults ContainerName="container"><Blobs>`)

	next := ""
	if q.Get("delimiter") == "/" {
		var prefixes []string
		for _, n := range names {
			if i := strings.Index(n[len(prefix):], "/"); i >= 0 {
				p := n[:len(prefix)+i+1]
				if !slices.Contains(prefixes, p) {
					prefixes = append(prefixes, p)
				}
			}
		}
		for _, p := range prefixes {
			fmt.Fprintf(w, `<BlobPrefix><Name>%s</Name></BlobPrefix>`, p)
		}
	} else {
		start, _ := strconv.Atoi(q.Get("marker"))
		end := min(start+s.pageSize, len(names))
		for _, n := range names[start:end] {
			b := s.blobs[n]
			fmt.Fprintf(w, `<Blob><Name>%s</Name><Properties><Last-Modified>%s</Last-Modified><Content-Length>%d</Content-Length></Properties></Blob>`,
				n, b.lastModified.UTC().Format(http.TimeFormat), len(b.content))
		}
		if end < len(names) {
			next = strconv.Itoa(end)
		}
	}
	fmt.Fprintf(w, `</Blobs><NextMarker>%s</NextMarker></EnumerationResults>`, next)
}

func (s *blobStore) download(w http.ResponseWriter, r *http.Request, name string) {
	rng := r.Header.Get("x-ms-range")
	if rng == "" {
		rng = r.Header.Get("Range")
	}

	s.mu.Lock()
	b, ok := s.blobs[name]
	if rng != "" {
		s.ranges = append(s.ranges, rng)
	}
	s.mu.Unlock()
	if !ok {
		writeBlobError(w, http.StatusNotFound, "BlobNotFound")
		return
	}

	size := len(b.content)
	w.Header().Set("Last-Modified", b.lastModified.UTC().Format(http.TimeFormat))
	if rng == "" {
		w.Header().Set("Content-Length", strconv.Itoa(size))
		w.WriteHeader(http.StatusOK)
		w.Write(b.content)
		return
	}
	var first, last int
	if _, err := fmt.Sscanf(rng, "bytes=%d-%d", &first, &last); err != nil {
		writeBlobError(w, http.StatusBadRequest, "InvalidHeaderValue")
		return
	}
	if first >= size {
		writeBlobError(w, http.StatusRequestedRangeNotSatisfiable, "InvalidRange")
		return
	}
	last = min(last, size-1)
	w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, size))
	w.Header().Set("Content-Length", strconv.Itoa(last-first+1))
	w.WriteHeader(http.StatusPartialContent)
	w.Write(b.content[first : last+1])
}

// newTestBackend creates a Backend pointed at an httptest server imitating
// enough of the Blob REST API for listing and ranged downloads.
func newTestBackend(t *testing.T, chunkSize int64) (*Backend, *blobStore) {
	t.Helper()
	store := &blobStore{blobs: map[string]*storedBlob{}, pageSize: 2}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := strings.TrimPrefix(r.URL.Path, "/")
		name, ok := strings.CutPrefix(p, "container/")
		switch {
		case p == "container" && r.URL.Query().Get("comp") == "list":
			store.list(w, r)
		case ok && r.Method == http.MethodGet:
			store.download(w, r, name)
		default:
			writeBlobError(w, http.StatusNotFound, "ContainerNotFound")
		}
	}))
	t.Cleanup(srv.Close)

	client, err := azblob.NewClientWithNoCredential(srv.URL, nil)
	if err != nil {
		t.Fatalf("failed to create azblob client: %v", err)
	}
	return NewWithClient(client, "container", chunkSize), store
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.AzureStorageConfig
	}{
		{"missing account", config.AzureStorageConfig{AccountKey: "a2V5", ContainerName: "c"}},
		{"missing key", config.AzureStorageConfig{AccountName: "acct", ContainerName: "c"}},
		{"missing container", config.AzureStorageConfig{AccountName: "acct", AccountKey: "a2V5"}},
		{"key not base64", config.AzureStorageConfig{AccountName: "acct", AccountKey: "%%%", ContainerName: "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(&tt.cfg, 0); err == nil {
				t.Error("New() = nil error")
			}
		})
	}
}

func TestNew_ServiceURLOverride(t *testing.T) {
	b, err := New(&config.AzureStorageConfig{
		AccountName:   "devstoreaccount1",
		AccountKey:    "a2V5",
		ContainerName: "audios",
		ServiceURL:    "http://127.0.0.1:10000/devstoreaccount1/",
	}, 0)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !strings.HasPrefix(b.container.URL(), "http://127.0.0.1:10000/devstoreaccount1/audios") {
		t.Errorf("container URL = %q", b.container.URL())
	}
}

func TestListFolders(t *testing.T) {
	b, store := newTestBackend(t, 0)
	store.put("Lectures/a.mp3", "a", epoch)
	store.put("Talks/b.mp3", "b", epoch)
	store.put("top.mp3", "c", epoch)

	folders, err := b.ListFolders(context.Background())
	if err != nil {
		t.Fatalf("ListFolders() error: %v", err)
	}
	want := []storage.Entry{{ID: "Lectures", Name: "Lectures"}, {ID: "Talks", Name: "Talks"}}
	if !slices.Equal(folders, want) {
		t.Errorf("ListFolders() = %v, want %v", folders, want)
	}
}

func TestListFiles_PagesNewestFirst(t *testing.T) {
	b, store := newTestBackend(t, 0)
	store.put("Lectures/a.mp3", "a", epoch)
	store.put("Lectures/b.mp3", "b", epoch.Add(2*time.Hour))
	store.put("Lectures/c.mp3", "c", epoch.Add(time.Hour))

	files, err := b.ListFiles(context.Background(), "Lectures")
	if err != nil {
		t.Fatalf("ListFiles() error: %v", err)
	}
	var got []string
	for _, f := range files {
		got = append(got, f.ID)
	}
	if want := []string{"Lectures/b.mp3", "Lectures/c.mp3", "Lectures/a.mp3"}; !slices.Equal(got, want) {
		t.Errorf("ListFiles() = %v, want %v", got, want)
	}
	if store.lists != 2 {
		t.Errorf("list requests = %d, want 2", store.lists)
	}
}

func TestSearch(t *testing.T) {
	b, store := newTestBackend(t, 0)
	store.put("Lectures/Week1.json", "[]", epoch)
	store.put("Lectures/week2.json", "[]", epoch)
	store.put("Lectures/other.json", "[]", epoch)

	names, err := b.Search(context.Background(), "WEEK")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	slices.Sort(names)
	if want := []string{"Week1.json", "week2.json"}; !slices.Equal(names, want) {
		t.Errorf("Search() = %v, want %v", names, want)
	}
}

func TestStreamMedia_Chunks(t *testing.T) {
	b, store := newTestBackend(t, 5)
	store.put("Lectures/a.mp3", "hello azure!", epoch)

	stream, err := b.StreamMedia(context.Background(), "Lectures/a.mp3")
	if err != nil {
		t.Fatalf("StreamMedia() error: %v", err)
	}
	var got bytes.Buffer
	var sizes []int
	for chunk, err := range storage.Chunks(stream) {
		if err != nil {
			t.Fatalf("chunk error: %v", err)
		}
		sizes = append(sizes, len(chunk))
		got.Write(chunk)
	}
	if got.String() != "hello azure!" {
		t.Errorf("streamed %q", got.String())
	}
	if want := []int{5, 5, 2}; !slices.Equal(sizes, want) {
		t.Errorf("chunk sizes = %v, want %v", sizes, want)
	}
	if want := []string{"bytes=0-4", "bytes=5-9", "bytes=10-11"}; !slices.Equal(store.ranges, want) {
		t.Errorf("ranges = %v, want %v", store.ranges, want)
	}
}

func TestStreamMedia_EmptyBlob(t *testing.T) {
	b, store := newTestBackend(t, 5)
	store.put("Lectures/empty.mp3", "", epoch)

	stream, err := b.StreamMedia(context.Background(), "Lectures/empty.mp3")
	if err != nil {
		t.Fatalf("StreamMedia() error: %v", err)
	}
	defer stream.Close()
	if _, err := stream.Next(); err != io.EOF {
		t.Errorf("Next() error = %v, want io.EOF", err)
	}
}

func TestGetFileAndDownloadTo(t *testing.T) {
	b, store := newTestBackend(t, 4)
	store.put("Lectures/a.json", `[{"text":"hi"}]`, epoch)
	ctx := context.Background()

	data, err := b.GetFile(ctx, "Lectures/a.json")
	if err != nil {
		t.Fatalf("GetFile() error: %v", err)
	}
	var buf bytes.Buffer
	if err := b.DownloadTo(ctx, "Lectures/a.json", &buf); err != nil {
		t.Fatalf("DownloadTo() error: %v", err)
	}
	if !bytes.Equal(data, buf.Bytes()) || string(data) != `[{"text":"hi"}]` {
		t.Errorf("GetFile() = %q, DownloadTo() = %q", data, buf.Bytes())
	}
}

func TestNotFound(t *testing.T) {
	b, _ := newTestBackend(t, 0)
	ctx := context.Background()

	if _, err := b.GetFile(ctx, "Lectures/none.json"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetFile() error = %v, want ErrNotFound", err)
	}
	if err := b.DownloadTo(ctx, "Lectures/none.mp3", io.Discard); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("DownloadTo() error = %v, want ErrNotFound", err)
	}
}
