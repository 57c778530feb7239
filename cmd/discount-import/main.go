// Command discount-import bulk-creates discount codes from gzip-compressed
// files holding one code per line. Codes that appear in more than one file
// are ambiguous and are skipped and reported instead of imported.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/repository"
)

type config struct {
	pattern     string
	databaseURL string
	workers     int
	scan        scanOptions

	title   string
	kind    string
	value   string
	canUses int
	ttl     time.Duration
}

func main() {
	var cfg config

	flag.StringVar(&cfg.pattern, "files", "data/*.gz", "glob of gzip files with one code per line")
	flag.StringVar(&cfg.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&cfg.workers, "workers", 8, "concurrent database writers")
	flag.UintVar(&cfg.scan.Capacity, "expected-codes", 10_000_000, "expected number of codes per file")
	flag.Float64Var(&cfg.scan.FPRate, "false-positive-rate", 0.001, "bloom filter false positive rate")
	flag.StringVar(&cfg.title, "title", "Imported code", "title of created codes")
	flag.StringVar(&cfg.kind, "type", string(discount.TypePercentage), "discount type: percentage or fixed")
	flag.StringVar(&cfg.value, "value", "10", "discount value")
	flag.IntVar(&cfg.canUses, "can-uses", 1, "uses allowed per code")
	flag.DurationVar(&cfg.ttl, "ttl", 30*24*time.Hour, "time until imported codes expire")
	flag.Parse()

	if cfg.databaseURL == "" {
		cfg.databaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("discount import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("discount import completed successfully")
}

func run(ctx context.Context, cfg config) error {
	files, err := filepath.Glob(cfg.pattern)
	if err != nil {
		return errors.Wrap(err, "match files")
	}
	if len(files) == 0 {
		return errors.Errorf("no files match %q", cfg.pattern)
	}
	value, err := decimal.NewFromString(cfg.value)
	if err != nil {
		return errors.Wrap(err, "parse discount value")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, cfg.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	svc := discount.NewService(repository.NewDiscountRepository(pool))
	template := discount.CreateRequest{
		Title:     cfg.title,
		Type:      discount.Type(cfg.kind),
		Value:     value,
		ExpiredAt: time.Now().Add(cfg.ttl),
		CanUses:   cfg.canUses,
	}

	var (
		counts   tally
		repeated []string
		codes    = make(chan string, 1024)
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(codes)
		var err error
		repeated, err = scan(gctx, files, cfg.scan, func(code string) error {
			select {
			case codes <- code:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
		return err
	})
	for range max(cfg.workers, 1) {
		g.Go(func() error {
			return write(gctx, svc, template, codes, &counts)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for _, code := range repeated {
		slog.Warn("skipped code repeated across files", slog.String("code", code))
	}
	slog.Info("import summary",
		slog.Int("files", len(files)),
		slog.Int("created", counts.created),
		slog.Int("already_existing", counts.existing),
		slog.Int("invalid", counts.invalid),
		slog.Int("repeated", len(repeated)),
	)
	return nil
}

// codeCreator is the part of discount.Service used by the writers.
type codeCreator interface {
	Create(ctx context.Context, req discount.CreateRequest) (*discount.Code, error)
}

func write(ctx context.Context, svc codeCreator, template discount.CreateRequest, codes <-chan string, counts *tally) error {
	for code := range codes {
		req := template
		req.Code = code

		_, err := svc.Create(ctx, req)
		var valErr *discount.ValidationError
		switch {
		case err == nil:
			counts.add(1, 0, 0)
		case errors.Is(err, discount.ErrAlreadyExists):
			counts.add(0, 1, 0)
		case errors.As(err, &valErr):
			slog.Warn("rejected code", slog.String("code", code), slog.String("field", valErr.Field))
			counts.add(0, 0, 1)
		default:
			return errors.Wrapf(err, "create code %s", code)
		}
	}
	return nil
}
