// Command simcluster runs the Similarity Clusterer: a single batch pass
// that groups archive ids into near-duplicate text and image clusters and
// writes the assignments back to the store (spec §2 item 6, §4.6).
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/adarchive/crcore/internal/cluster"
	"github.com/adarchive/crcore/internal/config"
	"github.com/adarchive/crcore/internal/dbstore"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment variables")
	}

	if len(os.Args) < 2 {
		fmt.Println("usage: simcluster <config-file> [version]")
		os.Exit(1)
	}

	configPath := os.Args[1]
	command := "run"
	if len(os.Args) > 2 {
		command = os.Args[2]
	}

	switch command {
	case "run":
		runClustering(configPath)
	case "version":
		printVersion()
	default:
		fmt.Printf("unknown command: %s\n", command)
		os.Exit(1)
	}
}

func runClustering(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	store, err := dbstore.New(dbstore.Config{
		Hosts:       cfg.Database.Hosts,
		Keyspace:    cfg.Database.Keyspace,
		Consistency: cfg.Database.Consistency,
		LocalDC:     cfg.Database.LocalDC,
		Username:    cfg.Database.Username,
		Password:    cfg.Database.Password,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer store.Close()

	result, err := cluster.Run(context.Background(), store, cluster.Config{
		BitDifferenceThreshold: cfg.Clustering.BitDifferenceThreshold,
		StableClusterIDs:       cfg.Clustering.StableClusterIDs,
	})
	if err != nil {
		log.Fatalf("clustering failed: %v", err)
	}

	log.Printf("simcluster %s done: %d text clusters, %d image clusters", Version, result.TextClusters, result.ImageClusters)
}

func printVersion() {
	fmt.Printf("simcluster %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}
