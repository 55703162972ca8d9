// Package media serves audio bytes to the browser player. Both routes are guarded by
// the session cookie because an audio element cannot attach an Authorization header.
//
// Two delivery modes exist:
//   - /audios/*file_id materializes the file as a scoped download, then serves it
//     with http.ServeContent so range requests (seeking) and ETag revalidation work.
//     The temp file is removed when the handler returns.
//   - /api/stream/*file_id relays the backend chunk stream as it arrives. It starts
//     playing sooner but cannot seek; a failure after the first byte is reported in
//     the X-Stream-Error trailer.
package media

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/zahid0/audio-app/internal/api/respond"
	"github.com/zahid0/audio-app/internal/catalog"
	"github.com/zahid0/audio-app/internal/middleware"
	"github.com/zahid0/audio-app/internal/storage"
)

const (
	// ContentType is sent for every media response.
	ContentType = "audio/mpeg"

	// StreamErrorTrailer carries the error kind when a stream fails mid-transfer.
	StreamErrorTrailer = "X-Stream-Error"
)

// fileID extracts the id from a catch-all route parameter, which Gin reports with
// a leading slash.
func fileID(c *gin.Context) string {
	return strings.TrimPrefix(c.Param("file_id"), "/")
}

// @Summary      Play audio file
// @Description  Downloads the file to a temporary location and serves it with range support. Requires the session cookie.
// @Tags         Media
// @Produce      audio/mpeg
// @Param        file_id  path  string  true  "File id (may contain slashes)"
// @Success      200  {file}    binary
// @Success      206  {file}    binary  "Partial content for a Range request"
// @Failure      401  {object}  map[string]interface{}  "Unauthenticated"
// @Failure      404  {object}  map[string]interface{}  "File not found"
// @Router       /audios/{file_id} [get]
// PlayHandler handles GET /audios/*file_id
func PlayHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := fileID(c)
		if id == "" {
			respond.Detail(c, http.StatusNotFound, "File not found")
			return
		}

		err := cat.WithDownload(c.Request.Context(), id, func(d *catalog.ScopedDownload) error {
			f, err := os.Open(d.Path)
			if err != nil {
				return err
			}
			defer f.Close()

			c.Header("Content-Type", ContentType)
			c.Header("ETag", `"`+d.ETag+`"`)
			http.ServeContent(c.Writer, c.Request, path.Base(id), time.Time{}, f)
			return nil
		})
		if err != nil {
			respond.Error(c, err, "File not found")
		}
	}
}

// @Summary      Stream audio file
// @Description  Relays the file chunk by chunk as the storage backend delivers it. Requires the session cookie.
// @Tags         Media
// @Produce      audio/mpeg
// @Param        file_id  path  string  true  "File id (may contain slashes)"
// @Success      200  {file}    binary
// @Failure      404  {object}  map[string]interface{}  "File not found"
// @Router       /api/stream/{file_id} [get]
// StreamHandler handles GET /api/stream/*file_id
func StreamHandler(cat *catalog.Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := fileID(c)
		if id == "" {
			respond.Detail(c, http.StatusNotFound, "File not found")
			return
		}

		stream, err := cat.Stream(c.Request.Context(), id)
		if err != nil {
			respond.Error(c, err, "File not found")
			return
		}
		defer stream.Close()

		// The first chunk decides between an error status and a 200.
		first, err := stream.Next()
		if err != nil && !errors.Is(err, io.EOF) {
			respond.Error(c, err, "File not found")
			return
		}

		c.Header("Content-Type", ContentType)
		c.Header("Trailer", StreamErrorTrailer)
		c.Status(http.StatusOK)
		if len(first) > 0 {
			if _, werr := c.Writer.Write(first); werr != nil {
				return
			}
			c.Writer.Flush()
		}
		if errors.Is(err, io.EOF) {
			return
		}

		for {
			chunk, err := stream.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				slog.Error("media stream failed mid-transfer",
					"id", id,
					"kind", storage.KindLabel(err),
					"request_id", middleware.RequestID(c),
					"error", err)
				_ = c.Error(err)
				c.Writer.Header().Set(StreamErrorTrailer, storage.KindLabel(err))
				return
			}
			if _, err := c.Writer.Write(chunk); err != nil {
				// Client went away; Close stops further chunk requests.
				return
			}
			c.Writer.Flush()
		}
	}
}
