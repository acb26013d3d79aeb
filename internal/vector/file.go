package vector

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
)

// Persisted layout (little endian):
//
//	magic "KTVX" | version u32 | type len u32 | type | dims u32 | count u32 | capacity u32
//	count x (id len u32 | id | dims x f32)
//	payload len u64 | payload | crc32 u32 over everything before it
const (
	fileMagic   = "KTVX"
	fileVersion = uint32(1)
	maxIDLen    = 1 << 16
	maxDims     = 1 << 16
)

// Header describes a persisted index file.
type Header struct {
	Version    uint32
	Type       string
	Dimensions int
	Count      int
	Capacity   int
}

type fileContents struct {
	Header
	IDs     []string
	Vectors [][]float32
	Payload []byte
}

// writeIndexFile writes c to path through a temp file and rename so readers
// never see a partially written index.
func writeIndexFile(path string, c *fileContents) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	var buf bytes.Buffer
	w := func(v any) {
		_ = binary.Write(&buf, binary.LittleEndian, v)
	}
	buf.WriteString(fileMagic)
	w(fileVersion)
	w(uint32(len(c.Type)))
	buf.WriteString(c.Type)
	w(uint32(c.Dimensions))
	w(uint32(len(c.IDs)))
	w(uint32(c.Capacity))
	for i, id := range c.IDs {
		w(uint32(len(id)))
		buf.WriteString(id)
		buf.Write(float32SliceToBytes(c.Vectors[i]))
	}
	w(uint64(len(c.Payload)))
	buf.Write(c.Payload)
	w(crc32.ChecksumIEEE(buf.Bytes()))

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp index file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write index file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync index file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close index file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename index file: %w", err)
	}
	return nil
}

// readIndexFile reads and verifies a persisted index.
func readIndexFile(path string) (*fileContents, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, path)
		}
		return nil, fmt.Errorf("read index file: %w", err)
	}
	if len(data) < len(fileMagic)+4 {
		return nil, fmt.Errorf("%w: file too short", ErrIndexCorrupt)
	}
	body, sum := data[:len(data)-4], binary.LittleEndian.Uint32(data[len(data)-4:])
	if crc32.ChecksumIEEE(body) != sum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrIndexCorrupt)
	}

	r := bytes.NewReader(body)
	hdr, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	entrySize := int64(4 + hdr.Dimensions*4)
	if int64(hdr.Count)*entrySize > int64(r.Len()) {
		return nil, fmt.Errorf("%w: count %d exceeds file size", ErrIndexCorrupt, hdr.Count)
	}
	c := &fileContents{
		Header:  *hdr,
		IDs:     make([]string, 0, hdr.Count),
		Vectors: make([][]float32, 0, hdr.Count),
	}
	vecBuf := make([]byte, hdr.Dimensions*4)
	for i := 0; i < hdr.Count; i++ {
		id, err := readString(r)
		if err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, vecBuf); err != nil {
			return nil, fmt.Errorf("%w: read vector %d: %v", ErrIndexCorrupt, i, err)
		}
		c.IDs = append(c.IDs, id)
		c.Vectors = append(c.Vectors, bytesToFloat32Slice(vecBuf))
	}
	var payloadLen uint64
	if err := binary.Read(r, binary.LittleEndian, &payloadLen); err != nil {
		return nil, fmt.Errorf("%w: read payload length: %v", ErrIndexCorrupt, err)
	}
	if payloadLen != uint64(r.Len()) {
		return nil, fmt.Errorf("%w: payload length %d, %d bytes remain", ErrIndexCorrupt, payloadLen, r.Len())
	}
	c.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(r, c.Payload); err != nil {
		return nil, fmt.Errorf("%w: read payload: %v", ErrIndexCorrupt, err)
	}
	return c, nil
}

// ReadHeader reads only the header of the index file at path.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrIndexMissing, path)
		}
		return nil, fmt.Errorf("open index file: %w", err)
	}
	defer f.Close()
	return readHeader(bufio.NewReader(f))
}

func readHeader(r io.Reader) (*Header, error) {
	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return nil, fmt.Errorf("%w: bad magic", ErrIndexCorrupt)
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: read version: %v", ErrIndexCorrupt, err)
	}
	if version != fileVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrIndexIncompatible, version)
	}
	typ, err := readString(r)
	if err != nil {
		return nil, err
	}
	var dims, count, capacity uint32
	for _, v := range []*uint32{&dims, &count, &capacity} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: read header: %v", ErrIndexCorrupt, err)
		}
	}
	if dims == 0 || dims > maxDims {
		return nil, fmt.Errorf("%w: %d dimensions", ErrIndexCorrupt, dims)
	}
	return &Header{
		Version:    version,
		Type:       typ,
		Dimensions: int(dims),
		Count:      int(count),
		Capacity:   int(capacity),
	}, nil
}

func readString(r io.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("%w: read length: %v", ErrIndexCorrupt, err)
	}
	if n > maxIDLen {
		return "", fmt.Errorf("%w: string length %d too large", ErrIndexCorrupt, n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: read string: %v", ErrIndexCorrupt, err)
	}
	return string(b), nil
}

// checkCompatible verifies that a persisted file can be loaded into an index
// of the given type and dimension.
func checkCompatible(c *fileContents, indexType string, dimensions int) error {
	if c.Type != indexType {
		return fmt.Errorf("%w: file type %q, index type %q", ErrIndexIncompatible, c.Type, indexType)
	}
	if c.Dimensions != dimensions {
		return fmt.Errorf("%w: file has %d dimensions, index expects %d", ErrIndexIncompatible, c.Dimensions, dimensions)
	}
	return nil
}

// Open loads the index persisted at path and verifies it holds exactly
// expectedCount vectors. Any problem is reported as an error wrapping
// ErrRebuildRequired; a stale index is never returned.
func Open(path, indexType string, dimensions, expectedCount int, params Params) (VectorIndex, error) {
	hdr, err := ReadHeader(path)
	if err != nil {
		return nil, err
	}
	if hdr.Count != expectedCount {
		return nil, fmt.Errorf("%w: file has %d, expected %d", ErrCountMismatch, hdr.Count, expectedCount)
	}
	if params.Capacity < hdr.Capacity {
		params.Capacity = hdr.Capacity
	}
	idx, err := NewVectorIndex(indexType, dimensions, params)
	if err != nil {
		return nil, err
	}
	if err := idx.Load(path); err != nil {
		idx.Close()
		return nil, err
	}
	if idx.Size() != expectedCount {
		idx.Close()
		return nil, fmt.Errorf("%w: loaded %d, expected %d", ErrCountMismatch, idx.Size(), expectedCount)
	}
	return idx, nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}
