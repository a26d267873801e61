package handlers

import (
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/missastane/chat-engine/internal/chat"
	"github.com/missastane/chat-engine/internal/repositories"
	"github.com/missastane/chat-engine/internal/storage"
)

// saveUploads persists every multipart file under the "files" field and
// returns media inputs for the repository. On a partial failure the already
// stored files are removed before reporting ErrStorageFailure.
func saveUploads(c *gin.Context, store storage.Store, files []*multipart.FileHeader) ([]repositories.MediaInput, error) {
	media := make([]repositories.MediaInput, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			cleanupUploads(c, store, media)
			return nil, chat.ErrStorageFailure
		}
		path, size, err := store.Save(c.Request.Context(), fh.Filename, f)
		f.Close()
		if err != nil {
			cleanupUploads(c, store, media)
			return nil, chat.ErrStorageFailure
		}
		media = append(media, repositories.MediaInput{
			FileName: fh.Filename,
			FilePath: path,
			FileType: strings.TrimPrefix(filepath.Ext(fh.Filename), "."),
			FileSize: size,
			MimeType: fh.Header.Get("Content-Type"),
		})
	}
	return media, nil
}

func cleanupUploads(c *gin.Context, store storage.Store, media []repositories.MediaInput) {
	for _, m := range media {
		_ = store.Remove(c.Request.Context(), m.FilePath)
	}
}
