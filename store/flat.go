package store

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"sysrev/types"
)

// Flat index file layout (v1):
//   0..7   magic "SRVFLT01"
//   8..15  dim (uint64)
//   16..23 count (uint64)
//   24..   count*dim float32, little endian
var flatMagic = [8]byte{'S', 'R', 'V', 'F', 'L', 'T', '0', '1'}

const flatHeaderSize = 24

// FlatIndexStore keeps one vector file plus one JSON metadata file per
// session under dir. Search is exhaustive squared-L2 over all vectors, which
// matches the exact nearest-neighbor behavior the query pipeline expects.
type FlatIndexStore struct {
	dir string
}

func NewFlatIndexStore(dir string) (*FlatIndexStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FlatIndexStore{dir: dir}, nil
}

func (s *FlatIndexStore) Build(ctx context.Context, name string, vectors [][]float32, meta []types.ChunkMeta) (string, string, error) {
	if len(vectors) != len(meta) {
		return "", "", fmt.Errorf("vector count %d does not match metadata count %d", len(vectors), len(meta))
	}
	if len(vectors) == 0 {
		return "", "", fmt.Errorf("nothing to index")
	}

	base := sanitizeName(name) + "_index"
	indexPath := filepath.Join(s.dir, base+".index")
	metadataPath := filepath.Join(s.dir, base+"_metadata.json")

	if err := writeVectors(indexPath, vectors); err != nil {
		return "", "", err
	}
	if err := writeMetadata(metadataPath, meta); err != nil {
		return "", "", err
	}
	return indexPath, metadataPath, nil
}

func (s *FlatIndexStore) Append(ctx context.Context, indexPath, metadataPath string, vectors [][]float32, meta []types.ChunkMeta) error {
	if len(vectors) != len(meta) {
		return fmt.Errorf("vector count %d does not match metadata count %d", len(vectors), len(meta))
	}

	idx, err := s.Load(ctx, indexPath, metadataPath)
	if err != nil {
		return err
	}
	flat := idx.(*FlatIndex)

	if len(vectors) > 0 && len(vectors[0]) != flat.dim {
		return InvalidQueryError{Got: len(vectors[0]), Want: flat.dim}
	}

	all := append(flat.vectors, vectors...)
	allMeta := append(flat.meta, meta...)
	if err := writeVectors(indexPath, all); err != nil {
		return err
	}
	return writeMetadata(metadataPath, allMeta)
}

func (s *FlatIndexStore) Load(ctx context.Context, indexPath, metadataPath string) (Index, error) {
	vectors, dim, err := readVectors(indexPath)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, IndexLoadError{Path: metadataPath, Err: err}
	}
	var meta []types.ChunkMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, IndexLoadError{Path: metadataPath, Err: fmt.Errorf("corrupt metadata: %w", err)}
	}

	if len(meta) != len(vectors) {
		return nil, IndexLoadError{
			Path: indexPath,
			Err:  fmt.Errorf("index holds %d vectors but metadata has %d entries", len(vectors), len(meta)),
		}
	}

	return &FlatIndex{vectors: vectors, meta: meta, dim: dim}, nil
}

// FlatIndex is an in-memory exact nearest-neighbor index over squared
// Euclidean distance.
type FlatIndex struct {
	vectors [][]float32
	meta    []types.ChunkMeta
	dim     int
}

func (f *FlatIndex) Count() int     { return len(f.vectors) }
func (f *FlatIndex) Dimension() int { return f.dim }

func (f *FlatIndex) Papers() []string { return distinctPapers(f.meta) }

func (f *FlatIndex) Search(query []float32, k int) ([]SearchHit, error) {
	if len(query) != f.dim {
		return nil, InvalidQueryError{Got: len(query), Want: f.dim}
	}
	if k <= 0 {
		return nil, nil
	}
	if k > len(f.vectors) {
		k = len(f.vectors)
	}

	order := make([]int, len(f.vectors))
	dists := make([]float32, len(f.vectors))
	for i, v := range f.vectors {
		order[i] = i
		dists[i] = l2Squared(query, v)
	}
	// Stable sort keeps insertion order for equal distances.
	sort.SliceStable(order, func(a, b int) bool {
		return dists[order[a]] < dists[order[b]]
	})

	hits := make([]SearchHit, k)
	for i := 0; i < k; i++ {
		j := order[i]
		hits[i] = SearchHit{Meta: f.meta[j], Distance: dists[j]}
	}
	return hits, nil
}

func l2Squared(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func writeVectors(path string, vectors [][]float32) error {
	dim := len(vectors[0])
	for _, v := range vectors {
		if len(v) != dim {
			return fmt.Errorf("inconsistent vector dimensions: %d vs %d", len(v), dim)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := w.Write(flatMagic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(dim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(vectors))); err != nil {
		return err
	}
	for _, v := range vectors {
		if err := binary.Write(w, binary.LittleEndian, v); err != nil {
			return err
		}
	}
	return w.Flush()
}

func readVectors(path string) ([][]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, IndexLoadError{Path: path, Err: err}
	}
	if len(data) < flatHeaderSize || !bytes.Equal(data[:8], flatMagic[:]) {
		return nil, 0, IndexLoadError{Path: path, Err: fmt.Errorf("bad file header")}
	}

	dim := int(binary.LittleEndian.Uint64(data[8:16]))
	count := int(binary.LittleEndian.Uint64(data[16:24]))
	if dim <= 0 || count < 0 {
		return nil, 0, IndexLoadError{Path: path, Err: fmt.Errorf("bad header values: dim=%d count=%d", dim, count)}
	}
	if len(data) != flatHeaderSize+count*dim*4 {
		return nil, 0, IndexLoadError{Path: path, Err: fmt.Errorf("truncated vector data")}
	}

	r := bytes.NewReader(data[flatHeaderSize:])
	vectors := make([][]float32, count)
	for i := range vectors {
		vectors[i] = make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vectors[i]); err != nil {
			return nil, 0, IndexLoadError{Path: path, Err: err}
		}
	}
	return vectors, dim, nil
}

func writeMetadata(path string, meta []types.ChunkMeta) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func sanitizeName(name string) string {
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	if sb.Len() == 0 {
		return "session"
	}
	return sb.String()
}
