package halo

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Catalog is the durable output of a finder run: one group id per snapshot
// particle (aligned with the snapshot's particle order, -1 for unassigned)
// plus the run parameters and per-group peak densities.
type Catalog struct {
	RunID     string
	CreatedAt time.Time

	Threshold       float64
	SaddleThreshold float64
	PeakThreshold   float64
	NumNeighbors    int

	GroupID        []int64
	DensestInGroup []float64
}

// NumParticles returns the number of particles the catalog covers.
func (c *Catalog) NumParticles() int { return len(c.GroupID) }

// NumGroups returns the number of groups in the catalog.
func (c *Catalog) NumGroups() int { return len(c.DensestInGroup) }

// SaveCompressed writes the catalog as a zstd-compressed binary stream.
func (c *Catalog) SaveCompressed(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %v", err)
	}
	defer file.Close()

	bufWriter := bufio.NewWriterSize(file, 1024*1024)
	enc, err := zstd.NewWriter(bufWriter,
		zstd.WithEncoderLevel(zstd.SpeedBestCompression))
	if err != nil {
		return fmt.Errorf("failed to create zstd writer: %v", err)
	}
	defer enc.Close()

	idBytes := []byte(c.RunID)
	binary.Write(enc, binary.LittleEndian, uint32(len(idBytes)))
	enc.Write(idBytes)
	binary.Write(enc, binary.LittleEndian, c.CreatedAt.Unix())

	binary.Write(enc, binary.LittleEndian, c.Threshold)
	binary.Write(enc, binary.LittleEndian, c.SaddleThreshold)
	binary.Write(enc, binary.LittleEndian, c.PeakThreshold)
	binary.Write(enc, binary.LittleEndian, uint32(c.NumNeighbors))

	binary.Write(enc, binary.LittleEndian, uint64(len(c.GroupID)))
	binary.Write(enc, binary.LittleEndian, uint64(len(c.DensestInGroup)))
	binary.Write(enc, binary.LittleEndian, c.GroupID)
	binary.Write(enc, binary.LittleEndian, c.DensestInGroup)

	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to close encoder: %v", err)
	}
	if err := bufWriter.Flush(); err != nil {
		return fmt.Errorf("failed to flush buffer: %v", err)
	}
	return nil
}

// LoadCatalog reads a catalog written by SaveCompressed.
func LoadCatalog(filename string) (*Catalog, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %v", err)
	}
	defer file.Close()

	dec, err := zstd.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd reader: %v", err)
	}
	defer dec.Close()

	var idLen uint32
	if err := binary.Read(dec, binary.LittleEndian, &idLen); err != nil {
		return nil, fmt.Errorf("failed to read catalog header: %v", err)
	}
	idBytes := make([]byte, idLen)
	if _, err := io.ReadFull(dec, idBytes); err != nil {
		return nil, fmt.Errorf("failed to read run id: %v", err)
	}

	c := &Catalog{RunID: string(idBytes)}

	var createdUnix int64
	binary.Read(dec, binary.LittleEndian, &createdUnix)
	c.CreatedAt = time.Unix(createdUnix, 0).UTC()

	binary.Read(dec, binary.LittleEndian, &c.Threshold)
	binary.Read(dec, binary.LittleEndian, &c.SaddleThreshold)
	binary.Read(dec, binary.LittleEndian, &c.PeakThreshold)
	var numNeighbors uint32
	binary.Read(dec, binary.LittleEndian, &numNeighbors)
	c.NumNeighbors = int(numNeighbors)

	var numParticles, numGroups uint64
	binary.Read(dec, binary.LittleEndian, &numParticles)
	binary.Read(dec, binary.LittleEndian, &numGroups)

	c.GroupID = make([]int64, numParticles)
	c.DensestInGroup = make([]float64, numGroups)
	if err := binary.Read(dec, binary.LittleEndian, c.GroupID); err != nil {
		return nil, fmt.Errorf("failed to read group ids: %v", err)
	}
	if err := binary.Read(dec, binary.LittleEndian, c.DensestInGroup); err != nil {
		return nil, fmt.Errorf("failed to read group densities: %v", err)
	}
	return c, nil
}

// GenerateCatalogFilename builds a unique path under dir encoding the
// particle count, a timestamp and a short run id.
// Format: catalog-{numParticles}p-{timestamp}-{id}.zst
func GenerateCatalogFilename(dir string, numParticles int) string {
	timestamp := time.Now().Format("20060102-150405")
	id := uuid.New().String()[:8]
	return filepath.Join(dir, fmt.Sprintf("catalog-%dp-%s-%s.zst", numParticles, timestamp, id))
}

// CatalogInfo describes a saved catalog file without loading its contents.
type CatalogInfo struct {
	ID           string    `json:"id"`
	NumParticles int       `json:"numParticles"`
	Timestamp    time.Time `json:"timestamp"`
	FileSize     int64     `json:"fileSize"`
	Path         string    `json:"-"`
}

// ListSavedCatalogs scans dir for catalog files, newest first.
func ListSavedCatalogs(dir string) ([]CatalogInfo, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read catalogs directory: %v", err)
	}

	var infos []CatalogInfo
	for _, file := range files {
		name := file.Name()
		if !strings.HasPrefix(name, "catalog-") || !strings.HasSuffix(name, ".zst") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(name, ".zst"), "-")
		if len(parts) != 5 {
			continue
		}
		numParticles, err := strconv.Atoi(strings.TrimSuffix(parts[1], "p"))
		if err != nil {
			continue
		}
		timestamp, err := time.ParseInLocation("20060102-150405", parts[2]+"-"+parts[3], time.Local)
		if err != nil {
			continue
		}
		fileInfo, err := file.Info()
		if err != nil {
			continue
		}
		infos = append(infos, CatalogInfo{
			ID:           parts[4],
			NumParticles: numParticles,
			Timestamp:    timestamp,
			FileSize:     fileInfo.Size(),
			Path:         filepath.Join(dir, name),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Timestamp.After(infos[j].Timestamp)
	})
	return infos, nil
}

// FindCatalogFile locates the saved catalog whose filename contains id.
func FindCatalogFile(dir, id string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read catalogs directory: %v", err)
	}
	for _, file := range files {
		if strings.Contains(file.Name(), id) && strings.HasSuffix(file.Name(), ".zst") {
			return filepath.Join(dir, file.Name()), nil
		}
	}
	return "", fmt.Errorf("no catalog file found with id %s", id)
}

// CatalogSummary aggregates per-group statistics for a catalog.
type CatalogSummary struct {
	NumParticles     int     `json:"numParticles"`
	NumGroups        int     `json:"numGroups"`
	AssignedFraction float64 `json:"assignedFraction"`

	MinGroupSize    int     `json:"minGroupSize"`
	MaxGroupSize    int     `json:"maxGroupSize"`
	MeanGroupSize   float64 `json:"meanGroupSize"`
	MedianGroupSize float64 `json:"medianGroupSize"`

	MaxPeakDensity  float64 `json:"maxPeakDensity"`
	MeanPeakDensity float64 `json:"meanPeakDensity"`
}

// Summarize computes group size and peak density statistics.
func (c *Catalog) Summarize() CatalogSummary {
	summary := CatalogSummary{
		NumParticles: c.NumParticles(),
		NumGroups:    c.NumGroups(),
	}

	counts := make([]float64, c.NumGroups())
	assigned := 0
	for _, g := range c.GroupID {
		if g < 0 {
			continue
		}
		assigned++
		if int(g) < len(counts) {
			counts[g]++
		}
	}
	if c.NumParticles() > 0 {
		summary.AssignedFraction = float64(assigned) / float64(c.NumParticles())
	}

	if len(counts) > 0 {
		summary.MinGroupSize = int(floats.Min(counts))
		summary.MaxGroupSize = int(floats.Max(counts))
		summary.MeanGroupSize = stat.Mean(counts, nil)

		sorted := append([]float64(nil), counts...)
		sort.Float64s(sorted)
		summary.MedianGroupSize = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	}
	if len(c.DensestInGroup) > 0 {
		summary.MaxPeakDensity = floats.Max(c.DensestInGroup)
		summary.MeanPeakDensity = stat.Mean(c.DensestInGroup, nil)
	}
	return summary
}
