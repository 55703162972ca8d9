// Package library implements the bearer-authenticated JSON endpoints of the audio
// catalog: collections (folders), the audio files in a collection, transcript
// search, and transcript text.
package library

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/zahid0/audio-app/internal/api/respond"
	"github.com/zahid0/audio-app/internal/catalog"
	"github.com/zahid0/audio-app/internal/storage"
)

// AudioItem is one playable file in a collection listing.
type AudioItem struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// TranscriptResponse carries the joined transcript text.
type TranscriptResponse struct {
	Text string `json:"text"`
}

// @Summary      List collections
// @Description  Refreshes the folder listing from the storage backend and returns the visible folders.
// @Tags         Library
// @Produce      json
// @Security     Bearer
// @Success      200  {array}   storage.Entry
// @Failure      401  {object}  map[string]interface{}  "Could not validate credentials"
// @Failure      502  {object}  map[string]interface{}  "Storage backend unavailable"
// @Router       /api/collections [get]
// CollectionsHandler handles GET /api/collections
func CollectionsHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		folders, err := cat.RefreshFolders(c.Request.Context())
		if err != nil {
			respond.Error(c, err, "Folder not found")
			return
		}
		if folders == nil {
			folders = []storage.Entry{}
		}
		c.JSON(http.StatusOK, folders)
	}
}

// @Summary      List audio files
// @Description  Lists the files of one visible collection, newest first.
// @Tags         Library
// @Produce      json
// @Security     Bearer
// @Param        folder_id  path  string  true  "Collection id"
// @Success      200  {array}   AudioItem
// @Failure      404  {object}  map[string]interface{}  "Folder not found"
// @Router       /api/audios/{folder_id} [get]
// AudiosHandler handles GET /api/audios/:folder_id
func AudiosHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		files, err := cat.Files(c.Request.Context(), c.Param("folder_id"))
		if err != nil {
			respond.Error(c, err, "Folder not found")
			return
		}

		items := make([]AudioItem, 0, len(files))
		for _, f := range files {
			items = append(items, AudioItem{ID: f.ID, Title: f.Name, URL: "/audios/" + f.ID})
		}
		c.JSON(http.StatusOK, items)
	}
}

// @Summary      Search transcripts
// @Description  Returns the titles of transcripts whose file name contains the query.
// @Tags         Library
// @Produce      json
// @Security     Bearer
// @Param        query  query  string  true  "Search text (min length 1)"
// @Success      200  {array}   string
// @Failure      422  {object}  map[string]interface{}  "Query must not be empty"
// @Router       /api/search [get]
// SearchHandler handles GET /api/search?query=
func SearchHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		names, err := cat.Search(c.Request.Context(), c.Query("query"))
		if err != nil {
			respond.Error(c, err, "File not found")
			return
		}
		c.JSON(http.StatusOK, TranscriptTitles(names))
	}
}

// TranscriptTitles keeps the names that are transcripts and strips the suffix,
// preserving order. The result is never nil.
func TranscriptTitles(names []string) []string {
	titles := []string{}
	for _, name := range names {
		if title, ok := strings.CutSuffix(name, catalog.TranscriptSuffix); ok {
			titles = append(titles, title)
		}
	}
	return titles
}

// @Summary      Get transcript
// @Description  Resolves a transcript by title and returns its segments joined by newlines.
// @Tags         Library
// @Produce      json
// @Security     Bearer
// @Param        title  path  string  true  "Transcript title without the .json suffix"
// @Success      200  {object}  TranscriptResponse
// @Failure      404  {object}  map[string]interface{}  "File not found"
// @Router       /api/transcripts/{title} [get]
// TranscriptHandler handles GET /api/transcripts/:title
func TranscriptHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		text, err := cat.Transcript(c.Request.Context(), c.Param("title"))
		if err != nil {
			respond.Error(c, err, "File not found")
			return
		}
		c.JSON(http.StatusOK, TranscriptResponse{Text: text})
	}
}
