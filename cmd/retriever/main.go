// Command retriever runs the Creative Retrieval Pipeline: it repeatedly
// leases batches of archive ids, fetches each one's rendered snapshot and
// creative content, and durably records the results (spec §2 item 5).
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/adarchive/crcore/internal/browser"
	"github.com/adarchive/crcore/internal/config"
	"github.com/adarchive/crcore/internal/dbstore"
	"github.com/adarchive/crcore/internal/langdetect"
	"github.com/adarchive/crcore/internal/notify"
	"github.com/adarchive/crcore/internal/objstore"
	"github.com/adarchive/crcore/internal/pipeline"
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
		fmt.Println("usage: retriever <config-file> [migrate|version]")
		os.Exit(1)
	}

	configPath := os.Args[1]
	command := "run"
	if len(os.Args) > 2 {
		command = os.Args[2]
	}

	switch command {
	case "run":
		runPipeline(configPath)
	case "migrate":
		runMigrations(configPath)
	case "version":
		printVersion()
	default:
		fmt.Printf("unknown command: %s\n", command)
		os.Exit(1)
	}
}

func runPipeline(configPath string) {
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

	objClient, err := objstore.NewClient(context.Background(), objstore.Config{
		Endpoint:        cfg.ObjectStore.Endpoint,
		Region:          cfg.ObjectStore.Region,
		AccessKeyID:     cfg.ObjectStore.AccessKeyID,
		SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
		UsePathStyle:    cfg.ObjectStore.UsePathStyle,
	})
	if err != nil {
		log.Fatalf("failed to build object store client: %v", err)
	}
	uploader := objstore.NewUploader(objClient)

	browserMgr := browser.NewManager(newBrowserFactory(cfg.Browser.Options))
	defer func() {
		if err := browserMgr.Close(context.Background()); err != nil {
			log.Printf("error closing browser session: %v", err)
		}
	}()

	notifier := notify.NewSlackWebhook(cfg.Logging.SlackURL, cfg.Logging.SlackUserIDToInclude)
	langDetector := langdetect.NewScriptHeuristicDetector(0) // fixed seed, spec §4.5

	p := pipeline.New(store, store, uploader, browserMgr, notifier, langDetector,
		pipeline.NewHTTPVideoFetcher(), cfg.Limits)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("retriever %s starting, max video download size %d bytes", Version, cfg.Limits.MaxVideoDownloadSize)
	if err := p.Run(ctx); err != nil {
		log.Fatalf("pipeline failed: %v", err)
	}
	log.Println("retriever exiting cleanly")
}

// newBrowserFactory returns the browser.Factory operators must replace with
// a concrete binding to their headless-browser driver and creative
// extraction library (spec §1: both are out of scope, "referenced only by
// the interfaces they expose"). The stub below fails loudly rather than
// silently returning empty results.
func newBrowserFactory(options map[string]string) browser.Factory {
	return func(ctx context.Context) (*browser.Handle, error) {
		return nil, fmt.Errorf("no browser/extractor factory configured; wire a concrete browser.Factory before running retriever")
	}
}

func runMigrations(configPath string) {
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

	log.Println("running database migrations...")
	if err := store.Migrate(); err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	log.Println("migrations completed successfully")
}

func printVersion() {
	fmt.Printf("retriever %s\n", Version)
	fmt.Printf("  build time: %s\n", BuildTime)
	fmt.Printf("  git commit: %s\n", GitCommit)
}
