package halo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"os"

	"github.com/klauspost/compress/zstd"
)

// Snapshot is a full-domain particle set as read from storage, before
// decomposition: one row per particle with a partition-independent global
// index, plus the domain box and its periodicity.
type Snapshot struct {
	ID   []int64
	X    []float64
	Y    []float64
	Z    []float64
	Mass []float64

	Domain   Bounds
	Periodic [3]bool
}

// Len returns the particle count.
func (s *Snapshot) Len() int { return len(s.ID) }

// SaveCompressed writes the snapshot as a zstd-compressed binary stream.
func (s *Snapshot) SaveCompressed(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter)
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %v", err)
	}
	defer enc.Close()

	binary.Write(enc, binary.LittleEndian, uint64(s.Len()))
	for a := 0; a < 3; a++ {
		binary.Write(enc, binary.LittleEndian, s.Domain.Min[a])
	}
	for a := 0; a < 3; a++ {
		binary.Write(enc, binary.LittleEndian, s.Domain.Max[a])
	}
	for a := 0; a < 3; a++ {
		binary.Write(enc, binary.LittleEndian, s.Periodic[a])
	}

	binary.Write(enc, binary.LittleEndian, s.ID)
	binary.Write(enc, binary.LittleEndian, s.X)
	binary.Write(enc, binary.LittleEndian, s.Y)
	binary.Write(enc, binary.LittleEndian, s.Z)
	binary.Write(enc, binary.LittleEndian, s.Mass)

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %v", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %v", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveCompressed.
func LoadSnapshot(filename string) (*Snapshot, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(bufio.NewReaderSize(file, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer dec.Close()

	var n uint64
	if err := binary.Read(dec, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("failed to read particle count: %v", err)
	}
	s := &Snapshot{
		ID:   make([]int64, n),
		X:    make([]float64, n),
		Y:    make([]float64, n),
		Z:    make([]float64, n),
		Mass: make([]float64, n),
	}
	for a := 0; a < 3; a++ {
		binary.Read(dec, binary.LittleEndian, &s.Domain.Min[a])
	}
	for a := 0; a < 3; a++ {
		binary.Read(dec, binary.LittleEndian, &s.Domain.Max[a])
	}
	for a := 0; a < 3; a++ {
		binary.Read(dec, binary.LittleEndian, &s.Periodic[a])
	}

	for _, arr := range []interface{}{s.ID, s.X, s.Y, s.Z, s.Mass} {
		if err := binary.Read(dec, binary.LittleEndian, arr); err != nil {
			return nil, fmt.Errorf("failed to read particle arrays: %v", err)
		}
	}
	return s, nil
}

// GenerateBlobs builds a synthetic snapshot: numBlobs Gaussian clumps of
// particles on a uniform background, unit masses, in the unit box. The same
// seed always produces the same snapshot.
func GenerateBlobs(n, numBlobs int, seed int64) *Snapshot {
	r := rand.New(rand.NewSource(seed))
	s := &Snapshot{
		ID:       make([]int64, n),
		X:        make([]float64, n),
		Y:        make([]float64, n),
		Z:        make([]float64, n),
		Mass:     make([]float64, n),
		Domain:   Bounds{Max: [3]float64{1, 1, 1}},
		Periodic: [3]bool{true, true, true},
	}

	type blob struct{ cx, cy, cz, sigma float64 }
	blobs := make([]blob, numBlobs)
	for b := range blobs {
		blobs[b] = blob{
			cx:    0.2 + 0.6*r.Float64(),
			cy:    0.2 + 0.6*r.Float64(),
			cz:    0.2 + 0.6*r.Float64(),
			sigma: 0.01 + 0.02*r.Float64(),
		}
	}

	wrap := func(v float64) float64 { return v - math.Floor(v) }
	for i := 0; i < n; i++ {
		s.ID[i] = int64(i)
		s.Mass[i] = 1
		// Four in five particles live in a clump, the rest are background.
		if numBlobs > 0 && r.Float64() < 0.8 {
			b := blobs[r.Intn(numBlobs)]
			s.X[i] = wrap(b.cx + r.NormFloat64()*b.sigma)
			s.Y[i] = wrap(b.cy + r.NormFloat64()*b.sigma)
			s.Z[i] = wrap(b.cz + r.NormFloat64()*b.sigma)
		} else {
			s.X[i] = r.Float64()
			s.Y[i] = r.Float64()
			s.Z[i] = r.Float64()
		}
	}
	return s
}
