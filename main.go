package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"web/chainhop/config"
	"web/chainhop/halo"
	"web/chainhop/runner"
)

// CatalogServer serves saved group catalogs and runs new finder jobs on
// request. At most one catalog is held in memory at a time.
type CatalogServer struct {
	mu      sync.RWMutex
	catalog *halo.Catalog

	cfg  *config.Config
	log  *zap.Logger
	diag *halo.Diagnostics
}

func NewCatalogServer(cfg *config.Config, log *zap.Logger, diag *halo.Diagnostics) *CatalogServer {
	return &CatalogServer{cfg: cfg, log: log, diag: diag}
}

func (s *CatalogServer) current() *halo.Catalog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.catalog
}

func (s *CatalogServer) set(cat *halo.Catalog) {
	s.mu.Lock()
	s.catalog = cat
	s.mu.Unlock()
}

func formatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}
	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}

// createCatalog generates a synthetic snapshot, runs the finder over it and
// saves the resulting catalog.
func (s *CatalogServer) createCatalog(ctx context.Context, numParticles, numBlobs int, seed int64) (*halo.CatalogInfo, error) {
	snap := halo.GenerateBlobs(numParticles, numBlobs, seed)

	cfg := s.cfg
	cat, err := runner.Run(ctx, runner.Job{
		Snapshot: snap,
		Grid:     cfg.Domain.GridDims(),
		Periodic: cfg.Domain.PeriodicAxes(),
		Padding:  cfg.Domain.Padding,
		Opts: halo.Options{
			Threshold:       cfg.Finder.Threshold,
			SaddleThreshold: cfg.Finder.SaddleThreshold(),
			PeakThreshold:   cfg.Finder.PeakThreshold(),
			NumNeighbors:    cfg.Finder.NumNeighbors,
			NMerge:          cfg.Finder.NMerge,
			MaxRounds:       cfg.Finder.MaxRounds,
			Log:             s.log,
			Diag:            s.diag,
		},
		Log: s.log,
	})
	if err != nil {
		return nil, err
	}

	savePath := halo.GenerateCatalogFilename(cfg.Server.DataDir, snap.Len())
	parts := strings.Split(strings.TrimSuffix(filepath.Base(savePath), ".zst"), "-")
	cat.RunID = parts[len(parts)-1]
	if err := cat.SaveCompressed(savePath); err != nil {
		return nil, fmt.Errorf("failed to save catalog: %v", err)
	}

	fileInfo, err := os.Stat(savePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %v", err)
	}
	s.log.Info("catalog created",
		zap.String("id", cat.RunID),
		zap.Int("particles", snap.Len()),
		zap.Int("groups", cat.NumGroups()),
		zap.String("file_size", formatFileSize(fileInfo.Size())))

	s.set(cat)
	return &halo.CatalogInfo{
		ID:           cat.RunID,
		NumParticles: snap.Len(),
		Timestamp:    cat.CreatedAt,
		FileSize:     fileInfo.Size(),
	}, nil
}

func (s *CatalogServer) loadCatalogByID(id string) (*halo.Catalog, error) {
	path, err := halo.FindCatalogFile(s.cfg.Server.DataDir, id)
	if err != nil {
		return nil, err
	}
	cat, err := halo.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %v", err)
	}
	s.set(cat)
	return cat, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		cfg, err = config.Default()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logCfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(cfg.Log.Level); err == nil {
		logCfg.Level = lvl
	}
	log, err := logCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
		log.Fatal("creating catalog directory", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	diag := halo.NewDiagnostics(registry)
	server := NewCatalogServer(cfg, log, diag)

	// Start with the most recent saved catalog, if any.
	if infos, err := halo.ListSavedCatalogs(cfg.Server.DataDir); err == nil && len(infos) > 0 {
		if cat, err := halo.LoadCatalog(infos[0].Path); err == nil {
			server.set(cat)
			log.Info("loaded most recent catalog", zap.String("id", cat.RunID))
		}
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.Default()

	// Enable CORS
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	// List saved catalogs
	r.GET("/api/catalogs", func(c *gin.Context) {
		infos, err := halo.ListSavedCatalogs(cfg.Server.DataDir)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if infos == nil {
			infos = []halo.CatalogInfo{}
		}
		c.JSON(http.StatusOK, infos)
	})

	// Run the finder over a freshly generated snapshot
	r.POST("/api/catalogs", func(c *gin.Context) {
		var req struct {
			NumParticles int   `json:"numParticles"`
			NumBlobs     int   `json:"numBlobs"`
			Seed         int64 `json:"seed"`
		}
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if req.NumParticles <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "numParticles must be positive"})
			return
		}
		if req.NumBlobs <= 0 {
			req.NumBlobs = 8
		}
		info, err := server.createCatalog(c.Request.Context(), req.NumParticles, req.NumBlobs, req.Seed)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, info)
	})

	// Load a saved catalog into the server
	r.POST("/api/catalogs/load/:id", func(c *gin.Context) {
		cat, err := server.loadCatalogByID(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "Catalog loaded successfully",
			"id":      cat.RunID,
			"summary": cat.Summarize(),
		})
	})

	// Summary statistics of the loaded catalog
	r.GET("/api/catalogs/summary", func(c *gin.Context) {
		cat := server.current()
		if cat == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no catalog loaded"})
			return
		}
		c.JSON(http.StatusOK, cat.Summarize())
	})

	// Groups of the loaded catalog, largest first
	r.GET("/api/groups", func(c *gin.Context) {
		cat := server.current()
		if cat == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no catalog loaded"})
			return
		}
		limit := 100
		if v := c.Query("limit"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed < 1 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
				return
			}
			limit = parsed
		}

		type groupEntry struct {
			ID          int64   `json:"id"`
			Size        int     `json:"size"`
			PeakDensity float64 `json:"peakDensity"`
		}
		sizes := make([]int, cat.NumGroups())
		for _, g := range cat.GroupID {
			if g >= 0 && int(g) < len(sizes) {
				sizes[g]++
			}
		}
		groups := make([]groupEntry, cat.NumGroups())
		for g := range groups {
			groups[g] = groupEntry{ID: int64(g), Size: sizes[g], PeakDensity: cat.DensestInGroup[g]}
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i].Size > groups[j].Size })
		if len(groups) > limit {
			groups = groups[:limit]
		}
		c.JSON(http.StatusOK, gin.H{"numGroups": cat.NumGroups(), "groups": groups})
	})

	// Member particle rows of one group
	r.GET("/api/groups/:id", func(c *gin.Context) {
		cat := server.current()
		if cat == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "no catalog loaded"})
			return
		}
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id < 0 || int(id) >= cat.NumGroups() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group id"})
			return
		}
		members := make([]int, 0)
		for i, g := range cat.GroupID {
			if g == id {
				members = append(members, i)
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"id":          id,
			"size":        len(members),
			"peakDensity": cat.DensestInGroup[id],
			"members":     members,
		})
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info("starting catalog server", zap.String("addr", cfg.Server.Addr))
		if err := r.Run(cfg.Server.Addr); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	<-quit
	log.Info("shutting down server")
}
