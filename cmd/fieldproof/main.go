package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/OpenHarvest-Labs/fieldproof/pkg/blobstore"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/canonicalize"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/config"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/extract"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/ledger"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/observability"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/pipeline"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/record"
	"github.com/OpenHarvest-Labs/fieldproof/pkg/session"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "commit":
		return runCommitCmd(args[2:], stdout, stderr)
	case "hash":
		return runHashCmd(args[2:], stdout, stderr)
	case "extract":
		return runExtractCmd(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: fieldproof <command> [flags]

Commands:
  extract   run extraction over a transcript and print the record
  hash      print the canonical form and digest of a record JSON file
  commit    run a transcript through the full pipeline and anchor it`)
}

// runExtractCmd extracts a record from a transcript and prints it.
func runExtractCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	fs.SetOutput(stderr)
	text := fs.String("text", "", "transcript text (reads stdin when empty)")
	lang := fs.String("lang", "en", "BCP 47 language tag of the transcript")
	profilePath := fs.String("profile", "", "extraction profile YAML (optional)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	transcript, err := readInput(*text, fs.Args())
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	extractor, err := newExtractor(*profilePath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	rec := extractor.Extract(transcript, *lang)
	out, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}

// runHashCmd canonicalizes a record JSON file and prints the digest.
func runHashCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	canonical := fs.Bool("canonical", false, "also print the canonical JSON form")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		_, _ = fmt.Fprintln(stderr, "Usage: fieldproof hash [-canonical] <record.json>")
		return 2
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	var rec record.ObservationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error: parse record:", err)
		return 1
	}

	c, err := canonicalize.Record(&rec)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if *canonical {
		_, _ = fmt.Fprintln(stdout, string(c))
	}
	_, _ = fmt.Fprintln(stdout, canonicalize.Hash(c))
	return 0
}

// runCommitCmd drives a transcript through session, extraction, blob upload
// and ledger anchoring, then prints the committed session.
func runCommitCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("commit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	text := fs.String("text", "", "transcript text (reads stdin when empty)")
	lang := fs.String("lang", "en", "BCP 47 language tag of the transcript")
	audioPath := fs.String("audio", "", "path to the evidentiary audio file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	transcript, err := readInput(*text, fs.Args())
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if *audioPath == "" {
		_, _ = fmt.Fprintln(stderr, "Error: -audio is required; a commitment needs its evidentiary payload")
		return 2
	}
	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}

	cfg := config.Load()
	logger := observability.NewLogger(cfg.LogLevel)

	ctx := context.Background()
	p, obs, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(ctx) }()

	sess, err := p.StartSession(ctx, *lang)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	if sess, err = p.Capture(ctx, sess.ID, transcript); err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	committed, err := p.Commit(ctx, sess.ID, audio, true)
	if err != nil {
		if committed != nil {
			_, _ = fmt.Fprintf(stderr, "Error: %v (session %s is %s)\n", err, committed.ID, committed.State)
		} else {
			_, _ = fmt.Fprintln(stderr, "Error:", err)
		}
		return 1
	}
	sess = committed

	out, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, string(out))
	return 0
}

func buildPipeline(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, *observability.Provider, error) {
	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	anchor, err := newAnchorer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	extractor, err := newExtractor(cfg.ProfilePath)
	if err != nil {
		return nil, nil, err
	}
	store, err := newSessionStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	obsCfg := observability.DefaultConfig()
	obsCfg.Enabled = cfg.OTELEnabled
	obsCfg.OTLPEndpoint = cfg.OTELEndpoint
	obsCfg.ServiceName = cfg.ServiceName
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init observability: %w", err)
	}

	// The trail goes to stderr; stdout carries the command's result.
	p, err := pipeline.New(store, blobs, anchor, extractor, pipeline.Options{
		CommitTimeout: cfg.CommitTimeout,
		Logger:        logger,
		Observability: obs,
		Trail:         session.NewTrailWithWriter(os.Stderr),
	})
	if err != nil {
		return nil, nil, err
	}
	return p, obs, nil
}

func newSessionStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendMemory:
		store := session.NewMemoryStore()
		store.StartSweeper(ctx, cfg.SweepInterval, cfg.SessionTTL)
		return store, nil
	case config.SessionBackendRedis:
		return session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, 0, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.SessionBackend)
	}
}

func newExtractor(profilePath string) (*extract.Extractor, error) {
	if profilePath == "" {
		return extract.NewExtractor(nil), nil
	}
	profile, err := extract.LoadProfile(profilePath)
	if err != nil {
		return nil, fmt.Errorf("load extraction profile: %w", err)
	}
	return extract.NewExtractor(profile), nil
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobBackendMemory:
		return blobstore.NewMemoryStore(), nil
	case config.BlobBackendFile:
		return blobstore.NewFileStore(cfg.BlobDir)
	case config.BlobBackendIPFS:
		return blobstore.NewIPFSStore(cfg.IPFSAPIURL), nil
	case config.BlobBackendS3:
		return blobstore.NewS3Store(ctx, blobstore.S3StoreConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

func newAnchorer(ctx context.Context, cfg *config.Config) (ledger.Anchorer, error) {
	switch cfg.AnchorBackend {
	case config.AnchorBackendChain:
		return ledger.NewChainLedger(), nil
	case config.AnchorBackendSQLite:
		db, err := sql.Open("sqlite", strings.TrimPrefix(cfg.DatabaseURL, "file:"))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return ledger.NewSQLiteArchive(db)
	case config.AnchorBackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("ping postgres: %w", err)
		}
		return ledger.NewPostgresArchive(db)
	case config.AnchorBackendHTTP:
		if cfg.AnchorEndpoint == "" {
			return nil, fmt.Errorf("ANCHOR_ENDPOINT is required for the http backend")
		}
		anchor := ledger.NewHTTPAnchorer(cfg.AnchorEndpoint, cfg.AnchorRPS)
		return ledger.NewBreakerAnchorer(anchor, 5, 30*time.Second), nil
	default:
		return nil, fmt.Errorf("unknown anchor backend %q", cfg.AnchorBackend)
	}
}

func readInput(text string, rest []string) (string, error) {
	if text != "" {
		return text, nil
	}
	if len(rest) == 1 {
		data, err := os.ReadFile(rest[0])
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}
	stat, err := os.Stdin.Stat()
	if err == nil && (stat.Mode()&os.ModeCharDevice) == 0 {
		data, err := io.ReadAll(io.LimitReader(os.Stdin, 1<<20))
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(string(data))
		if s != "" {
			return s, nil
		}
	}
	return "", fmt.Errorf("no transcript: pass -text, a file path, or pipe stdin")
}
