// Command customer-import loads gzipped customer directory exports into the
// retail platform. Each line is "full_name;phone;email". Phones are deduped
// across files with a bloom filter so re-exported records are sent once;
// records that do reach the platform are upserts keyed by phone, so the
// filter's rare false positives only skip a redundant update.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/warungtech/pos-register/internal/backend"
	"github.com/warungtech/pos-register/internal/domain/customer"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	progressEvery = 10_000
)

func main() {
	var (
		platformURL string
		apiKey      string
		concurrency int
	)

	flag.StringVar(&platformURL, "platform-url", "", "retail platform API base URL (or POS_PLATFORM_URL env)")
	flag.StringVar(&apiKey, "api-key", "", "retail platform API key (or POS_PLATFORM_API_KEY env)")
	flag.IntVar(&concurrency, "concurrency", 8, "number of concurrent upload workers")
	flag.Parse()

	if platformURL == "" {
		platformURL = os.Getenv("POS_PLATFORM_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("POS_PLATFORM_API_KEY")
	}
	if platformURL == "" {
		slog.Error("platform URL is required: set --platform-url or POS_PLATFORM_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("no input files: pass one or more customers*.gz exports")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, platformURL, apiKey, files, concurrency); err != nil {
		slog.Error("customer import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("customer import completed successfully")
}

func run(ctx context.Context, platformURL, apiKey string, files []string, concurrency int) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	client := backend.New(platformURL, backend.WithAPIKey(apiKey))
	records := make(chan customer.CreateInput, concurrency*4)

	g, ctx := errgroup.WithContext(ctx)

	// Producer: stream files in order, dedupe phones across all of them.
	g.Go(func() error {
		defer close(records)
		seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)

		var total, dups uint64
		for _, path := range files {
			if err := streamGzFile(ctx, path, func(line string) error {
				in, ok := parseRecord(line)
				if !ok {
					return nil
				}
				total++
				if total%progressEvery == 0 {
					slog.Info("scan progress",
						slog.String("file", path),
						slog.Uint64("records", total),
					)
				}
				if seen.TestAndAddString(in.Phone) {
					dups++
					return nil
				}
				select {
				case records <- in:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			}); err != nil {
				return errors.Wrapf(err, "stream %s", path)
			}
		}

		slog.Info("scan complete",
			slog.Uint64("records", total),
			slog.Uint64("duplicates_skipped", dups),
		)
		return nil
	})

	// Workers: upsert records on the platform.
	for range concurrency {
		g.Go(func() error {
			for in := range records {
				_, updated, err := client.CreateCustomer(ctx, in)
				if err != nil {
					return errors.Wrapf(err, "upsert customer %s", in.Phone)
				}
				if updated {
					slog.Debug("customer updated", slog.String("phone", in.Phone))
				}
			}
			return nil
		})
	}

	return g.Wait()
}

// parseRecord parses a "full_name;phone;email" line. Malformed or incomplete
// lines are skipped.
func parseRecord(line string) (customer.CreateInput, bool) {
	parts := strings.SplitN(line, ";", 3)
	if len(parts) != 3 {
		return customer.CreateInput{}, false
	}
	in := customer.CreateInput{
		FullName: strings.TrimSpace(parts[0]),
		Phone:    strings.TrimSpace(parts[1]),
		Email:    strings.TrimSpace(parts[2]),
	}
	if err := in.Validate(); err != nil {
		return customer.CreateInput{}, false
	}
	return in, true
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
