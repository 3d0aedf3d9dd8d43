package loader

import (
	"strings"

	"sysrev/types"
)

// WordChunker splits extracted text into a sliding window of words.
// Consecutive chunks from the same paper share Overlap words so that context
// is preserved across chunk boundaries. Same input and config always produce
// the same chunks.
type WordChunker struct {
	Size    int // words per chunk
	Overlap int // words shared with the previous chunk, must be < Size
}

func NewWordChunker(size, overlap int) *WordChunker {
	if size <= 0 {
		size = 750
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}
	return &WordChunker{Size: size, Overlap: overlap}
}

// Chunk covers the whole text with no gaps; a trailing remainder shorter than
// the overlap still becomes a final chunk. Text shorter than one window
// yields exactly one chunk.
func (c *WordChunker) Chunk(text, paperName string) []types.ChunkMeta {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var chunks []types.ChunkMeta
	step := c.Size - c.Overlap
	for i := 0; i < len(words); i += step {
		end := i + c.Size
		if end > len(words) {
			end = len(words)
		}

		chunks = append(chunks, types.ChunkMeta{
			Text:       strings.Join(words[i:end], " "),
			PaperName:  paperName,
			ChunkIndex: len(chunks),
		})

		if end == len(words) {
			break
		}
	}

	for i := range chunks {
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}
