package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Binary index file layout: magic "KIX1", dimension (4), count (4), then per
// passage: id, source document, text (each length-prefixed), chunk index (4),
// and the vector (dimension*4 bytes). All integers little-endian.

const fileMagic = "KIX1"

// Save persists the index to path, creating parent directories as needed.
// An empty path is a no-op.
func (ix *Index) Save(path string) error {
	if path == "" {
		return nil
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte(fileMagic)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	dim := 0
	if len(ix.entries) > 0 {
		dim = len(ix.entries[0].vector)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(dim)); err != nil {
		return fmt.Errorf("write dimension: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(ix.entries))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, entry := range ix.entries {
		for _, s := range []string{entry.passage.ID, entry.passage.SourceDocument, entry.passage.Text} {
			if err := writeString(f, s); err != nil {
				return err
			}
		}
		if err := binary.Write(f, binary.LittleEndian, uint32(entry.passage.ChunkIndex)); err != nil {
			return fmt.Errorf("write chunk index: %w", err)
		}
		if _, err := f.Write(float32SliceToBytes(entry.vector)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

// Load replaces the index contents with the file at path. A missing file is
// not an error; the index is left unchanged.
func (ix *Index) Load(path string) error {
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

	magic := make([]byte, len(fileMagic))
	if _, err := f.Read(magic); err != nil || string(magic) != fileMagic {
		return fmt.Errorf("not an index file: %s", path)
	}
	var dim, count uint32
	if err := binary.Read(f, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimension: %w", err)
	}
	if err := binary.Read(f, binary.LittleEndian, &count); err != nil {
		return fmt.Errorf("read count: %w", err)
	}

	entries := make([]indexed, 0, count)
	byID := make(map[string]int, count)
	vecBuf := make([]byte, dim*4)
	for i := uint32(0); i < count; i++ {
		var entry indexed
		id, err := readString(f)
		if err != nil {
			return fmt.Errorf("read passage id: %w", err)
		}
		source, err := readString(f)
		if err != nil {
			return fmt.Errorf("read source document: %w", err)
		}
		text, err := readString(f)
		if err != nil {
			return fmt.Errorf("read passage text: %w", err)
		}
		var chunkIndex uint32
		if err := binary.Read(f, binary.LittleEndian, &chunkIndex); err != nil {
			return fmt.Errorf("read chunk index: %w", err)
		}
		if _, err := readFull(f, vecBuf); err != nil {
			return fmt.Errorf("read vector: %w", err)
		}
		entry.passage.ID = id
		entry.passage.SourceDocument = source
		entry.passage.Text = text
		entry.passage.ChunkIndex = int(chunkIndex)
		entry.vector = bytesToFloat32Slice(vecBuf)
		byID[id] = len(entries)
		entries = append(entries, entry)
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.entries = entries
	ix.byID = byID
	return nil
}

func writeString(f *os.File, s string) error {
	if err := binary.Write(f, binary.LittleEndian, uint32(len(s))); err != nil {
		return fmt.Errorf("write string length: %w", err)
	}
	if _, err := f.Write([]byte(s)); err != nil {
		return fmt.Errorf("write string: %w", err)
	}
	return nil
}

func readString(f *os.File) (string, error) {
	var n uint32
	if err := binary.Read(f, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := readFull(f, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func float32SliceToBytes(s []float32) []byte {
	out := make([]byte, len(s)*4)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*4:(i+1)*4], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4 : (i+1)*4]))
	}
	return out
}
