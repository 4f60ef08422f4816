package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docqa-platform/models"
	"docqa-platform/services"
	"docqa-platform/utils"
)

// HandleAsk answers a question against the indexed corpus.
func HandleAsk(engine *services.QueryEngine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.AskRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "invalid request body", err.Error())
			return
		}

		result, err := engine.Answer(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleGetQuery returns one answered query from history.
func HandleGetQuery(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := store.GetQuery(c.Request.Context(), c.Param("id"))
		if errors.Is(err, models.ErrNotFound) {
			utils.RespondWithNotFound(c, "query not found")
			return
		}
		if err != nil {
			utils.RespondWithInternalError(c, "failed to load query")
			return
		}
		c.JSON(http.StatusOK, q)
	}
}

// HandleListQueries returns the query history, newest first.
func HandleListQueries(store services.MetadataStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, offset := pagination(c)
		queries, err := store.ListQueries(c.Request.Context(), limit, offset)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to list queries")
			return
		}
		if queries == nil {
			queries = []models.Query{}
		}
		c.JSON(http.StatusOK, gin.H{"queries": queries})
	}
}
