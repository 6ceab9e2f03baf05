package halo

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
)

// MMapWriter handles writing to memory-mapped files
type MMapWriter struct {
	data   mmap.MMap
	offset int
}

func NewMMapWriter(data mmap.MMap) *MMapWriter {
	return &MMapWriter{
		data:   data,
		offset: 0,
	}
}

func (w *MMapWriter) WriteUint64(v uint64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], v)
	w.offset += 8
}

func (w *MMapWriter) WriteInt64(v int64) {
	w.WriteUint64(uint64(v))
}

func (w *MMapWriter) WriteFloat64(v float64) {
	binary.LittleEndian.PutUint64(w.data[w.offset:], math.Float64bits(v))
	w.offset += 8
}

func (w *MMapWriter) WriteBool(v bool) {
	if v {
		w.data[w.offset] = 1
	} else {
		w.data[w.offset] = 0
	}
	w.offset++
}

// MMapReader handles reading from memory-mapped files
type MMapReader struct {
	data   mmap.MMap
	offset int
}

func NewMMapReader(data mmap.MMap) *MMapReader {
	return &MMapReader{
		data:   data,
		offset: 0,
	}
}

func (r *MMapReader) ReadUint64() uint64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return v
}

func (r *MMapReader) ReadInt64() int64 {
	return int64(r.ReadUint64())
}

func (r *MMapReader) ReadFloat64() float64 {
	v := binary.LittleEndian.Uint64(r.data[r.offset:])
	r.offset += 8
	return math.Float64frombits(v)
}

func (r *MMapReader) ReadBool() bool {
	v := r.data[r.offset] != 0
	r.offset++
	return v
}

// calculateSize calculates total size needed for memory mapping
func (s *Snapshot) calculateSize() int64 {
	size := int64(8)            // particle count
	size += 6 * 8               // domain bounds
	size += 3                   // periodicity flags
	size += int64(s.Len()) * 40 // id + x + y + z + mass per particle
	return size
}

// SaveMMap writes the snapshot to an uncompressed memory-mapped file. The
// layout is fixed width so readers can seek straight to a particle record.
func (s *Snapshot) SaveMMap(filename string) error {
	size := s.calculateSize()

	file, err := os.OpenFile(filename, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("failed to truncate file: %v", err)
	}

	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap file: %v", err)
	}
	defer mmapData.Unmap()

	writer := NewMMapWriter(mmapData)

	writer.WriteUint64(uint64(s.Len()))
	for a := 0; a < 3; a++ {
		writer.WriteFloat64(s.Domain.Min[a])
	}
	for a := 0; a < 3; a++ {
		writer.WriteFloat64(s.Domain.Max[a])
	}
	for a := 0; a < 3; a++ {
		writer.WriteBool(s.Periodic[a])
	}

	for i := 0; i < s.Len(); i++ {
		writer.WriteInt64(s.ID[i])
		writer.WriteFloat64(s.X[i])
		writer.WriteFloat64(s.Y[i])
		writer.WriteFloat64(s.Z[i])
		writer.WriteFloat64(s.Mass[i])
	}

	return mmapData.Flush()
}

// LoadMMapSnapshot reads a snapshot written by SaveMMap.
func LoadMMapSnapshot(filename string) (*Snapshot, error) {
	file, err := os.OpenFile(filename, os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	mmapData, err := mmap.Map(file, mmap.RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap file: %v", err)
	}
	defer mmapData.Unmap()

	reader := NewMMapReader(mmapData)

	n := reader.ReadUint64()
	s := &Snapshot{
		ID:   make([]int64, n),
		X:    make([]float64, n),
		Y:    make([]float64, n),
		Z:    make([]float64, n),
		Mass: make([]float64, n),
	}
	for a := 0; a < 3; a++ {
		s.Domain.Min[a] = reader.ReadFloat64()
	}
	for a := 0; a < 3; a++ {
		s.Domain.Max[a] = reader.ReadFloat64()
	}
	for a := 0; a < 3; a++ {
		s.Periodic[a] = reader.ReadBool()
	}

	for i := uint64(0); i < n; i++ {
		s.ID[i] = reader.ReadInt64()
		s.X[i] = reader.ReadFloat64()
		s.Y[i] = reader.ReadFloat64()
		s.Z[i] = reader.ReadFloat64()
		s.Mass[i] = reader.ReadFloat64()
	}

	return s, nil
}
