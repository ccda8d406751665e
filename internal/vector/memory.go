package vector

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// snapshotMagic prefixes every saved index file.
var snapshotMagic = [4]byte{'W', 'T', 'M', 'V'}

const snapshotVersion uint32 = 1

// MemoryIndex is an in-memory vector index using exact brute-force cosine search.
// Vectors are stored normalized, so a search is one dot product per entry.
type MemoryIndex struct {
	dimensions int
	ids        []int64
	vectors    [][]float32
	pos        map[int64]int
	mu         sync.RWMutex
}

// NewMemoryIndex creates an in-memory vector index with the given dimension.
func NewMemoryIndex(dimensions int) (*MemoryIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	return &MemoryIndex{
		dimensions: dimensions,
		ids:        make([]int64, 0),
		vectors:    make([][]float32, 0),
		pos:        make(map[int64]int),
	}, nil
}

// Upsert adds or replaces vectors by id. Every vector must have the index
// dimension and a non-zero finite magnitude.
func (m *MemoryIndex) Upsert(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	normalized := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != m.dimensions {
			return fmt.Errorf("%w: id %d has %d components, expected %d", ErrDimensionMismatch, ids[i], len(v), m.dimensions)
		}
		if normalized[i] = unit(v); normalized[i] == nil {
			return fmt.Errorf("vector for id %d has zero or non-finite magnitude", ids[i])
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, id := range ids {
		if p, ok := m.pos[id]; ok {
			m.vectors[p] = normalized[i]
			continue
		}
		m.pos[id] = len(m.ids)
		m.ids = append(m.ids, id)
		m.vectors = append(m.vectors, normalized[i])
	}
	return nil
}

// Replace swaps the whole contents for ids/vectors in one step. Entries with
// the wrong dimension or a zero magnitude are skipped; the returned error is
// only for mismatched argument lengths.
func (m *MemoryIndex) Replace(ctx context.Context, ids []int64, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	newIDs := make([]int64, 0, len(ids))
	newVectors := make([][]float32, 0, len(ids))
	newPos := make(map[int64]int, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != m.dimensions {
			continue
		}
		u := unit(vectors[i])
		if u == nil {
			continue
		}
		if p, ok := newPos[id]; ok {
			newVectors[p] = u
			continue
		}
		newPos[id] = len(newIDs)
		newIDs = append(newIDs, id)
		newVectors = append(newVectors, u)
	}
	m.mu.Lock()
	m.ids, m.vectors, m.pos = newIDs, newVectors, newPos
	m.mu.Unlock()
	return nil
}

// Search returns up to k entries whose cosine similarity to query is at least
// minScore, ordered by similarity descending and then id ascending.
func (m *MemoryIndex) Search(ctx context.Context, query []float32, k int, minScore float64) ([]Result, error) {
	if err := ValidateQuery(query, m.dimensions); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []Result{}, nil
	}
	q := unit(query)

	m.mu.RLock()
	scores := make([]Result, 0, len(m.ids))
	for i, vec := range m.vectors {
		s := clamp(InnerProduct(q, vec))
		if s >= minScore {
			scores = append(scores, Result{ID: m.ids[i], Score: s})
		}
	}
	m.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Score != scores[j].Score {
			return scores[i].Score > scores[j].Score
		}
		return scores[i].ID < scores[j].ID
	})
	if k < len(scores) {
		scores = scores[:k]
	}
	return scores, nil
}

// Remove removes vectors by ID.
func (m *MemoryIndex) Remove(ctx context.Context, ids []int64) error {
	removeSet := make(map[int64]bool, len(ids))
	for _, id := range ids {
		removeSet[id] = true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	newIDs := make([]int64, 0, len(m.ids))
	newVectors := make([][]float32, 0, len(m.vectors))
	newPos := make(map[int64]int, len(m.ids))
	for i, id := range m.ids {
		if !removeSet[id] {
			newPos[id] = len(newIDs)
			newIDs = append(newIDs, id)
			newVectors = append(newVectors, m.vectors[i])
		}
	}
	m.ids, m.vectors, m.pos = newIDs, newVectors, newPos
	return nil
}

// Vector returns a copy of the stored (normalized) vector for id.
func (m *MemoryIndex) Vector(id int64) ([]float32, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pos[id]
	if !ok {
		return nil, false
	}
	return append([]float32(nil), m.vectors[p]...), true
}

// Save persists the index to path, writing a temp file and renaming it into place.
// Format: magic "WTMV", version, dimension, n (uint32 each, little endian),
// then per entry: id (int64) and dimension float32 values.
func (m *MemoryIndex) Save(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	if err := m.writeTo(f); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

func (m *MemoryIndex) writeTo(w io.Writer) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bw := bufio.NewWriter(w)
	header := []uint32{snapshotVersion, uint32(m.dimensions), uint32(len(m.ids))}
	if _, err := bw.Write(snapshotMagic[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, id := range m.ids {
		if err := binary.Write(bw, binary.LittleEndian, id); err != nil {
			return fmt.Errorf("write id: %w", err)
		}
		if _, err := bw.Write(Float32SliceToBytes(m.vectors[i])); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush index file: %w", err)
	}
	return nil
}

// Load reads the index from path and replaces the in-memory contents. Dimensions must match.
// If the file does not exist, no error is returned and the index is unchanged.
func (m *MemoryIndex) Load(path string) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if magic != snapshotMagic {
		return fmt.Errorf("not an index snapshot: %s", path)
	}
	header := make([]uint32, 3)
	if err := binary.Read(r, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	version, dim, n := header[0], header[1], header[2]
	if version != snapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", version)
	}
	if int(dim) != m.dimensions {
		return fmt.Errorf("%w: file has %d, index expects %d", ErrDimensionMismatch, dim, m.dimensions)
	}

	ids := make([]int64, 0, n)
	vectors := make([][]float32, 0, n)
	pos := make(map[int64]int, n)
	buf := make([]byte, m.dimensions*4)
	for i := uint32(0); i < n; i++ {
		var id int64
		if err := binary.Read(r, binary.LittleEndian, &id); err != nil {
			return fmt.Errorf("read id: %w", err)
		}
		if _, err := io.ReadFull(r, buf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		pos[id] = len(ids)
		ids = append(ids, id)
		vectors = append(vectors, BytesToFloat32Slice(buf))
	}

	m.mu.Lock()
	m.ids, m.vectors, m.pos = ids, vectors, pos
	m.mu.Unlock()
	return nil
}

// Float32SliceToBytes encodes s as little-endian IEEE 754 values.
func Float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

// BytesToFloat32Slice decodes little-endian IEEE 754 values. Trailing bytes are ignored.
func BytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

// Size returns the number of vectors in the index.
func (m *MemoryIndex) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.ids)
}

// Dimensions returns the vector length the index accepts.
func (m *MemoryIndex) Dimensions() int {
	return m.dimensions
}

// Close is a no-op for MemoryIndex.
func (m *MemoryIndex) Close() error {
	return nil
}
