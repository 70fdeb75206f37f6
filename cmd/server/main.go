package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/nnvector/ivfcoord/pkg/api/rest"
	"github.com/nnvector/ivfcoord/pkg/api/rest/middleware"
	"github.com/nnvector/ivfcoord/pkg/config"
	"github.com/nnvector/ivfcoord/pkg/ivf"
	"github.com/nnvector/ivfcoord/pkg/observability"
)

var (
	version = "1.0.0"
	commit  = "dev"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version and exit")
		showHelp    = flag.Bool("help", false, "show help and exit")
		configFile  = flag.String("config", "", "path to configuration file (optional)")
		host        = flag.String("host", "", "server host (overrides config/env)")
		port        = flag.Int("port", 0, "server port (overrides config/env)")
		demoVectors = flag.Int("demo-vectors", 10000, "number of random vectors to seed the in-memory reference index with")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("IVF Query Coordinator v%s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	if *showHelp {
		showUsage()
		os.Exit(0)
	}

	printBanner()

	cfg := loadConfig(*configFile)

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := observability.NewDefaultLogger()
	metrics := observability.NewMetrics()

	log.Println("building in-memory reference index...")
	coord, err := buildCoordinator(cfg, *demoVectors)
	if err != nil {
		log.Fatalf("failed to build reference index: %v", err)
	}
	metrics.UpdateWorkerPoolSize(cfg.Coordinator.NumWorkers)

	var searchSurface interface {
		Search(queries [][]float32, params ivf.SearchParams) (*ivf.SearchResult, error)
	} = coord
	if cfg.Cache.Enabled {
		searchSurface = ivf.NewCachedCoordinator(coord, cfg.Cache.Capacity, cfg.Cache.TTL, metrics)
	}

	restConfig := rest.Config{
		Host:        cfg.Server.Host,
		Port:        cfg.Server.Port,
		CORSEnabled: cfg.Server.CORSEnabled,
		CORSOrigins: cfg.Server.CORSOrigins,
		Auth: middleware.AuthConfig{
			Enabled:      cfg.Auth.Enabled,
			JWTSecret:    cfg.Auth.JWTSecret,
			PublicPaths:  cfg.Auth.PublicPaths,
			AdminPaths:   cfg.Auth.AdminPaths,
			RequireAdmin: cfg.Auth.RequireAdmin,
		},
		RateLimit: middleware.RateLimitConfig{
			Enabled:        cfg.RateLimit.Enabled,
			RequestsPerSec: cfg.RateLimit.RequestsPerSec,
			Burst:          cfg.RateLimit.Burst,
			PerIP:          cfg.RateLimit.PerIP,
		},
	}

	defaults := rest.SearchDefaults{
		Nprobe:          cfg.Coordinator.DefaultNprobe,
		BatchedScan:     cfg.Coordinator.DefaultBatchedScan,
		OverfetchFactor: cfg.Coordinator.OverfetchFactor,
	}
	server := rest.NewServer(restConfig, searchSurface, defaults, metrics, logger)

	printStartupInfo(cfg)

	errChan := make(chan error, 1)
	go func() {
		log.Println("starting REST API server...")
		if err := server.Start(); err != nil {
			errChan <- fmt.Errorf("REST server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	log.Println("server is ready. Press Ctrl+C to stop.")
	select {
	case sig := <-sigChan:
		log.Printf("received signal: %v", sig)
	case err := <-errChan:
		log.Printf("server error: %v", err)
	}

	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		log.Printf("error stopping REST server: %v", err)
	}
	coord.ShutdownWorkers()

	log.Println("server stopped. goodbye!")
}

// buildCoordinator seeds a demo reference index with random vectors and
// wires a Coordinator around it. A real deployment would construct the
// Coordinator around a ParentIndex/PartitionManager/AttributeTable fed by
// an external ingestion pipeline instead.
func buildCoordinator(cfg *config.Config, numVectors int) (*ivf.Coordinator, error) {
	rng := rand.New(rand.NewSource(1))
	vectors := make([][]float32, numVectors)
	ids := make([]int64, numVectors)
	for i := 0; i < numVectors; i++ {
		v := make([]float32, cfg.Coordinator.Dimensions)
		for j := range v {
			v[j] = rng.Float32()*2 - 1
		}
		vectors[i] = v
		ids[i] = int64(i)
	}

	metric := ivf.L2
	if cfg.Coordinator.Metric == "inner_product" {
		metric = ivf.InnerProduct
	}

	ref, err := ivf.BuildReferenceIndex(vectors, ids, cfg.Coordinator.NumCentroids, metric)
	if err != nil {
		return nil, err
	}

	coord, err := ivf.New(ref.Parent, ref.Partitions, nil, metric, cfg.Coordinator.NumWorkers)
	if err != nil {
		return nil, err
	}
	return coord, nil
}

func loadConfig(configFile string) *config.Config {
	if configFile != "" {
		log.Printf("warning: config file support not yet implemented, using environment variables")
	}
	return config.LoadFromEnv()
}

func printBanner() {
	banner := `
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║                    IVF QUERY COORDINATOR                  ║
║         approximate nearest-neighbor search service        ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`
	fmt.Println(banner)
	fmt.Printf("Version: %s (commit: %s)\n\n", version, commit)
}

func printStartupInfo(cfg *config.Config) {
	fmt.Println("\n╔════════════════════════════════════════════════════════╗")
	fmt.Println("║            Server Configuration                        ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Address:          %-35s ║\n", cfg.Server.Address())
	fmt.Printf("║ TLS Enabled:      %-35v ║\n", cfg.Server.EnableTLS)
	fmt.Printf("║ CORS Enabled:     %-35v ║\n", cfg.Server.CORSEnabled)
	fmt.Printf("║ Auth Enabled:     %-35v ║\n", cfg.Auth.Enabled)
	fmt.Printf("║ Rate Limiting:    %-35v ║\n", cfg.RateLimit.Enabled)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║            Coordinator Configuration                   ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Dimensions:       %-35d ║\n", cfg.Coordinator.Dimensions)
	fmt.Printf("║ Num Centroids:    %-35d ║\n", cfg.Coordinator.NumCentroids)
	fmt.Printf("║ Default Nprobe:   %-35d ║\n", cfg.Coordinator.DefaultNprobe)
	fmt.Printf("║ Num Workers:      %-35d ║\n", cfg.Coordinator.NumWorkers)
	fmt.Printf("║ Metric:           %-35s ║\n", cfg.Coordinator.Metric)
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Println("║               Cache Configuration                      ║")
	fmt.Println("╠════════════════════════════════════════════════════════╣")
	fmt.Printf("║ Enabled:          %-35v ║\n", cfg.Cache.Enabled)
	fmt.Printf("║ Capacity:         %-35d ║\n", cfg.Cache.Capacity)
	fmt.Printf("║ TTL:              %-35s ║\n", cfg.Cache.TTL)
	fmt.Println("╚════════════════════════════════════════════════════════╝")
	fmt.Println()
}

func showUsage() {
	fmt.Println("IVF Query Coordinator - approximate nearest-neighbor search over an inverted-file index")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  ivfcoord-server [options]")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  -help             Show this help message")
	fmt.Println("  -version          Show version information")
	fmt.Println("  -config PATH      Path to configuration file (ignored; settings come from environment variables)")
	fmt.Println("  -host HOST        Server host (default: 0.0.0.0)")
	fmt.Println("  -port PORT        Server port (default: 8080)")
	fmt.Println("  -demo-vectors N   Number of random vectors to seed the demo index with (default: 10000)")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  IVFCOORD_HOST                Server host")
	fmt.Println("  IVFCOORD_PORT                Server port")
	fmt.Println("  IVFCOORD_REQUEST_TIMEOUT     Request timeout (e.g., 30s)")
	fmt.Println("  IVFCOORD_DIMENSIONS          Vector dimensions")
	fmt.Println("  IVFCOORD_NUM_CENTROIDS       Reference index partition count")
	fmt.Println("  IVFCOORD_DEFAULT_NPROBE      Default nprobe")
	fmt.Println("  IVFCOORD_NUM_WORKERS         Worker pool size (0 = inline)")
	fmt.Println("  IVFCOORD_METRIC              l2 or inner_product")
	fmt.Println("  IVFCOORD_CACHE_ENABLED       Enable query result cache (true/false)")
	fmt.Println("  IVFCOORD_CACHE_CAPACITY      Cache capacity")
	fmt.Println("  IVFCOORD_CACHE_TTL           Cache TTL (e.g., 5m)")
	fmt.Println("  IVFCOORD_AUTH_ENABLED        Enable JWT auth (true/false)")
	fmt.Println("  IVFCOORD_JWT_SECRET          JWT signing secret")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  ivfcoord-server")
	fmt.Println("  ivfcoord-server -port 9090")
	fmt.Println("  IVFCOORD_PORT=9090 IVFCOORD_NUM_WORKERS=8 ivfcoord-server")
	fmt.Println()
}
