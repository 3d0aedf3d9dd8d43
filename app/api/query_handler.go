package api

import (
	"log"

	"sysrev/app/agent"
	"sysrev/types"

	"github.com/gofiber/fiber/v2"
)

func (h *ReviewHandler) HandleQuery(c *fiber.Ctx) error {
	var params types.QueryParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}

	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	log.Printf("[QUERY] session %s: %.50q", params.SessionID, params.Question)

	// Taking the session lock keeps the query off an index that a
	// concurrent upload to the same session is rewriting.
	if params.SessionID != "" {
		lock := h.sessionLock(params.SessionID)
		lock.Lock()
		defer lock.Unlock()
	}

	queryVec, embedUsage, err := h.embedder.EmbedQuery(c.Context(), params.Question)
	if err != nil {
		return err
	}

	idx, err := h.indexes.Load(c.Context(), params.IndexPath, params.MetadataPath)
	if err != nil {
		return err
	}

	k := h.topK
	if k > idx.Count() {
		k = idx.Count()
	}
	hits, err := idx.Search(queryVec, k)
	if err != nil {
		return err
	}
	log.Printf("[QUERY] retrieved %d chunks from %d papers", len(hits), len(idx.Papers()))

	papers := agent.GroupByPaper(hits)
	answer, chatUsage, err := h.synth.Answer(c.Context(), params.Question, papers)
	if err != nil {
		return err
	}

	return c.JSON(types.QueryResponse{
		Status:         "success",
		Answer:         answer,
		PapersAnalyzed: idx.Papers(),
		TokenUsage:     embedUsage.Add(chatUsage),
	})
}

func (h *ReviewHandler) HandleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	session, err := h.sessions.Get(c.Context(), id)
	if err != nil {
		return ErrNotFound(id, "session")
	}
	return c.JSON(session)
}
