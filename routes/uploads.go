package routes

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docqa-platform/models"
	"docqa-platform/services"
	"docqa-platform/utils"
)

// HandleCreateUpload accepts a multipart batch under the "files" field and
// runs the ingestion pipeline. Accepted documents index in the background.
func HandleCreateUpload(ingestion *services.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		form, err := c.MultipartForm()
		if err != nil {
			utils.RespondWithBadRequest(c, "expected multipart form upload", nil)
			return
		}
		fileHeaders := form.File["files"]
		if len(fileHeaders) == 0 {
			utils.RespondWithBadRequest(c, "no files provided under the \"files\" field", nil)
			return
		}

		files := make([]services.IncomingFile, len(fileHeaders))
		for i, fh := range fileHeaders {
			fh := fh
			files[i] = services.IncomingFile{
				Filename: fh.Filename,
				Size:     fh.Size,
				Open: func() (io.ReadCloser, error) {
					return fh.Open()
				},
			}
		}

		batchLabel := c.PostForm("batch_label")
		upload, outcomes, err := ingestion.IngestBatch(c.Request.Context(), batchLabel, files)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"upload": upload,
			"files":  outcomes,
		})
	}
}

// HandleGetUpload returns one upload with its documents.
func HandleGetUpload(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		upload, err := store.GetUpload(c.Request.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "upload not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load upload")
			return
		}

		docs, err := store.ListDocuments(c.Request.Context(), id, 0, 0)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load documents")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"upload":    upload,
			"documents": docs,
		})
	}
}

// HandleGetUploadProgress returns batch-level counters plus the state of
// each document in the upload.
func HandleGetUploadProgress(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		upload, err := store.GetUpload(c.Request.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "upload not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load upload")
			return
		}

		docs, err := store.ListDocuments(c.Request.Context(), id, 0, 0)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load documents")
			return
		}

		states := make([]gin.H, len(docs))
		for i, d := range docs {
			states[i] = gin.H{
				"document_id": d.ID,
				"filename":    d.Filename,
				"status":      d.Status,
			}
			if d.ErrorMessage != "" {
				states[i]["error"] = d.ErrorMessage
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"upload_id": upload.ID,
			"status":    upload.Status,
			"total":     upload.Total,
			"succeeded": upload.Succeeded,
			"failed":    upload.Failed,
			"documents": states,
		})
	}
}

// HandleListUploads returns uploads, newest first.
func HandleListUploads(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		uploads, err := store.ListUploads(c.Request.Context(), limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to list uploads")
			return
		}
		if uploads == nil {
			uploads = []models.Upload{}
		}
		c.JSON(http.StatusOK, gin.H{"uploads": uploads})
	}
}

// HandleDeleteUpload removes an upload, its documents, chunks and vectors.
func HandleDeleteUpload(ingestion *services.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := ingestion.DeleteUpload(c.Request.Context(), c.Param("id"))
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "upload not found")
			return
		}
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

func pagination(c *gin.Context) (limit, offset int64) {
	limit = 50
	if v, err := strconv.ParseInt(c.Query("limit"), 10, 64); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.ParseInt(c.Query("offset"), 10, 64); err == nil && v >= 0 {
		offset = v
	}
	return limit, offset
}
