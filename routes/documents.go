package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa-platform/models"
	"docqa-platform/services"
	"docqa-platform/utils"
)

// HandleListDocuments returns documents, optionally filtered by upload.
func HandleListDocuments(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		docs, err := store.ListDocuments(c.Request.Context(), c.Query("upload_id"), limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to list documents")
			return
		}
		if docs == nil {
			docs = []models.Document{}
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs})
	}
}

// HandleGetDocument returns one document with its chunk count.
func HandleGetDocument(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load document")
			return
		}

		chunks, err := store.GetChunksByDocument(c.Request.Context(), doc.ID)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load chunks")
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"document":    doc,
			"chunk_count": len(chunks),
		})
	}
}

// HandleGetDocumentChunks returns a document's chunks in order.
func HandleGetDocumentChunks(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if _, err := store.GetDocument(c.Request.Context(), id); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				utils.RespondWithNotFound(c, "document not found")
				return
			}
			utils.RespondWithInternalError(c, "failed to load document")
			return
		}

		chunks, err := store.GetChunksByDocument(c.Request.Context(), id)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load chunks")
			return
		}
		if chunks == nil {
			chunks = []models.Chunk{}
		}
		c.JSON(http.StatusOK, gin.H{"chunks": chunks})
	}
}

// HandleGetIndexingStatus reports chunk-level embedding progress.
func HandleGetIndexingStatus(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, err := services.ComputeIndexingStatus(c.Request.Context(), store, c.Param("id"))
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to compute indexing status")
			return
		}
		c.JSON(http.StatusOK, status)
	}
}

// HandleReindexDocument schedules a forced re-embedding of every chunk.
func HandleReindexDocument(store services.MetadataStore, enqueuer services.TaskEnqueuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		doc, err := store.GetDocument(c.Request.Context(), id)
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load document")
			return
		}

		if err := enqueuer.EnqueueIndexDocument(c.Request.Context(), doc.ID, doc.UploadID, true); err != nil {
			utils.RespondWithInternalError(c, "failed to schedule reindexing")
			return
		}
		c.JSON(http.StatusAccepted, gin.H{
			"document_id": doc.ID,
			"status":      "scheduled",
		})
	}
}

// HandleDeleteDocument removes a document, its chunks and vectors.
func HandleDeleteDocument(ingestion *services.IngestionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := ingestion.DeleteDocument(c.Request.Context(), c.Param("id"))
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "document not found")
			return
		}
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}
