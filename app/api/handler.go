package api

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"sysrev/app/agent"
	"sysrev/loader"
	"sysrev/model"
	"sysrev/store"
	"sysrev/types"

	"github.com/gofiber/fiber/v2"
)

// AnswerSynthesizer is what the query pipeline needs from the agent.
type AnswerSynthesizer interface {
	Answer(ctx context.Context, question string, papers []agent.PaperContext) (string, types.TokenUsage, error)
}

// ReviewHandler owns the upload and query pipelines of the review service.
type ReviewHandler struct {
	extractor loader.Extractor
	chunker   *loader.WordChunker
	embedder  model.Embedder
	indexes   store.IndexStore
	sessions  store.SessionStorer
	synth     AnswerSynthesizer
	uploadDir string
	topK      int

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewReviewHandler(
	extractor loader.Extractor,
	chunker *loader.WordChunker,
	embedder model.Embedder,
	indexes store.IndexStore,
	sessions store.SessionStorer,
	synth AnswerSynthesizer,
	uploadDir string,
	topK int,
) *ReviewHandler {
	return &ReviewHandler{
		extractor: extractor,
		chunker:   chunker,
		embedder:  embedder,
		indexes:   indexes,
		sessions:  sessions,
		synth:     synth,
		uploadDir: uploadDir,
		topK:      topK,
		locks:     make(map[string]*sync.Mutex),
	}
}

// sessionLock serializes writes per session id and excludes queries against
// an index that is mid-rebuild from a concurrent upload.
func (h *ReviewHandler) sessionLock(id string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	lock, ok := h.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		h.locks[id] = lock
	}
	return lock
}

func (h *ReviewHandler) HandleUpload(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return NewError(fiber.StatusBadRequest, "no files provided")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return NewError(fiber.StatusBadRequest, "no files selected")
	}

	sessionID := c.FormValue("session_id")
	if sessionID == "" {
		sessionID = fmt.Sprintf("session_%d", time.Now().Unix())
	}
	log.Printf("[UPLOAD] session %s: %d file(s)", sessionID, len(files))

	var (
		papers []types.Paper
		failed []types.FailedPaper
	)
	for _, fileHeader := range files {
		filename := SafeFilename(fileHeader.Filename)
		if !strings.HasSuffix(strings.ToLower(filename), ".pdf") {
			log.Printf("[UPLOAD] skipped (not PDF): %s", filename)
			failed = append(failed, types.FailedPaper{Filename: filename, Reason: "not a PDF file"})
			continue
		}

		savePath := filepath.Join(h.uploadDir, sessionID+"_"+filename)
		if err := c.SaveFile(fileHeader, savePath); err != nil {
			return err
		}

		text, err := h.extractor.Extract(savePath)
		if err != nil {
			// A bad file does not abort the batch; it is reported back.
			log.Printf("[UPLOAD] %v", err)
			failed = append(failed, types.FailedPaper{Filename: filename, Reason: err.Error()})
			continue
		}

		log.Printf("[UPLOAD] extracted %d characters from %s", len(text), filename)
		papers = append(papers, types.Paper{Name: loader.PaperName(filename), Text: text})
	}

	if len(papers) == 0 {
		return NewError(fiber.StatusBadRequest, "failed to process PDFs - no text extracted")
	}

	var (
		allMeta   []types.ChunkMeta
		texts     []string
		estTokens int
	)
	for _, paper := range papers {
		chunks := h.chunker.Chunk(paper.Text, paper.Name)
		log.Printf("[UPLOAD] created %d chunks from %s", len(chunks), paper.Name)
		for _, chunk := range chunks {
			allMeta = append(allMeta, chunk)
			texts = append(texts, chunk.Text)
		}
		// Rough estimate: one token per four characters.
		estTokens += len(paper.Text) / 4
	}
	if len(allMeta) == 0 {
		return NewError(fiber.StatusBadRequest, "no chunks produced from uploaded papers")
	}

	vectors, usage, err := h.embedder.EmbedBatch(c.Context(), texts)
	if err != nil {
		return err
	}
	log.Printf("[UPLOAD] embedded %d chunks, %d tokens", len(vectors), usage.EmbeddingTokens)

	lock := h.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := h.sessions.Get(c.Context(), sessionID)
	var indexPath, metadataPath string
	switch err {
	case nil:
		// Re-upload to a known session extends the existing index; prior
		// papers stay searchable.
		indexPath, metadataPath = session.IndexPath, session.MetadataPath
		if err := h.indexes.Append(c.Context(), indexPath, metadataPath, vectors, allMeta); err != nil {
			return err
		}
	case store.ErrSessionNotFound:
		session = &types.Session{ID: sessionID, CreatedAt: time.Now()}
		indexPath, metadataPath, err = h.indexes.Build(c.Context(), sessionID, vectors, allMeta)
		if err != nil {
			return err
		}
	default:
		return err
	}

	session.IndexPath = indexPath
	session.MetadataPath = metadataPath
	session.UpdatedAt = time.Now()
	paperNames := make([]string, 0, len(papers))
	for _, paper := range papers {
		paperNames = append(paperNames, paper.Name)
		session.Papers = append(session.Papers, paper.Name)
	}
	if err := h.sessions.Put(c.Context(), *session); err != nil {
		return err
	}

	usage.TotalChunks = len(allMeta)
	usage.EstimatedTextTokens = estTokens

	return c.JSON(types.UploadResponse{
		Status:       "success",
		Message:      fmt.Sprintf("Successfully processed %d paper(s)", len(papers)),
		SessionID:    sessionID,
		IndexPath:    indexPath,
		MetadataPath: metadataPath,
		Papers:       paperNames,
		Failed:       failed,
		TotalPapers:  len(paperNames),
		TokenUsage:   usage,
	})
}

// SafeFilename strips any path components and characters that have no
// business in a filename coming off the wire.
func SafeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			sb.WriteRune(r)
		case r == ' ':
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "upload.pdf"
	}
	return sb.String()
}
