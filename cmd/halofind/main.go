package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"

	"web/chainhop/config"
	"web/chainhop/halo"
	"web/chainhop/runner"
)

var (
	configPath   = flag.String("config", "", "path to YAML config file (embedded defaults otherwise)")
	snapshotPath = flag.String("snapshot", "", "load particles from this snapshot file instead of generating")
	numParticles = flag.Int("points", 100000, "number of particles to generate")
	numBlobs     = flag.Int("blobs", 8, "number of dense clumps in the generated snapshot")
	seed         = flag.Int64("seed", 42, "generator seed")
	saveSnapshot = flag.String("save-snapshot", "", "write the generated snapshot to this file")
	outDir       = flag.String("out", "data/catalogs", "directory for the output catalog")
)

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %v", level, err)
	}
	cfg.Level = lvl
	return cfg.Build()
}

func loadConfig() (*config.Config, error) {
	if *configPath != "" {
		return config.Load(*configPath)
	}
	return config.Default()
}

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	log, err := buildLogger(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	var snap *halo.Snapshot
	if *snapshotPath != "" {
		log.Info("loading snapshot", zap.String("path", *snapshotPath))
		snap, err = halo.LoadSnapshot(*snapshotPath)
		if err != nil {
			log.Fatal("loading snapshot", zap.Error(err))
		}
	} else {
		log.Info("generating snapshot",
			zap.Int("particles", *numParticles),
			zap.Int("blobs", *numBlobs),
			zap.Int64("seed", *seed))
		snap = halo.GenerateBlobs(*numParticles, *numBlobs, *seed)
		if *saveSnapshot != "" {
			if err := snap.SaveCompressed(*saveSnapshot); err != nil {
				log.Fatal("saving snapshot", zap.Error(err))
			}
			log.Info("snapshot saved", zap.String("path", *saveSnapshot))
		}
	}

	job := runner.Job{
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
			Log:             log,
		},
		Log: log,
	}

	start := time.Now()
	cat, err := runner.Run(context.Background(), job)
	if err != nil {
		log.Fatal("finder job failed", zap.Error(err))
	}

	if err := os.MkdirAll(*outDir, 0755); err != nil {
		log.Fatal("creating output directory", zap.Error(err))
	}
	savePath := halo.GenerateCatalogFilename(*outDir, snap.Len())
	// Format: catalog-{numParticles}p-{timestamp}-{id}.zst
	parts := strings.Split(strings.TrimSuffix(filepath.Base(savePath), ".zst"), "-")
	cat.RunID = parts[len(parts)-1]
	if err := cat.SaveCompressed(savePath); err != nil {
		log.Fatal("saving catalog", zap.Error(err))
	}

	summary := cat.Summarize()
	log.Info("catalog saved",
		zap.String("path", savePath),
		zap.String("run_id", cat.RunID),
		zap.Int("groups", summary.NumGroups),
		zap.Float64("assigned_fraction", summary.AssignedFraction),
		zap.Int("largest_group", summary.MaxGroupSize),
		zap.Duration("elapsed", time.Since(start)))

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	log.Debug("memory usage", zap.Float64("alloc_mb", float64(mem.Alloc)/1024/1024))
}
