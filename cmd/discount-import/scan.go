package main

import (
	"bufio"
	"context"
	"log/slog"
	"math/bits"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"
)

const progressEvery = 1_000_000

type scanOptions struct {
	// Capacity is the expected number of codes per file.
	Capacity uint
	FPRate   float64
}

// scan streams every file twice. Pass 1 builds a bloom filter per file. Pass 2
// emits codes that no other file's filter contains and holds the rest as
// suspects. Suspects confirmed in two or more files are returned as repeated;
// false positives are emitted afterwards.
//
// emit is called concurrently and may see a code more than once when it is
// repeated within a single file.
func scan(ctx context.Context, files []string, opts scanOptions, emit func(code string) error) ([]string, error) {
	if len(files) > bits.UintSize {
		return nil, errors.Errorf("at most %d files are supported, got %d", bits.UintSize, len(files))
	}

	filters, err := buildFilters(ctx, files, opts)
	if err != nil {
		return nil, errors.Wrap(err, "build bloom filters")
	}

	suspects := make([]map[string]struct{}, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]struct{})
			var count uint64
			err := streamGzFile(gctx, path, func(code string) error {
				if count++; count%progressEvery == 0 {
					slog.Info("pass 2 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						found[code] = struct{}{}
						return nil
					}
				}
				return emit(code)
			})
			if err != nil {
				return errors.Wrapf(err, "scan %s", path)
			}
			slog.Info("pass 2 complete",
				slog.String("file", path),
				slog.Uint64("total_codes", count),
				slog.Int("suspects", len(found)),
			)
			suspects[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	masks := make(map[string]uint)
	for i, found := range suspects {
		for code := range found {
			masks[code] |= uint(1) << uint(i)
		}
	}

	var repeated []string
	for code, mask := range masks {
		if bits.OnesCount(mask) >= 2 {
			repeated = append(repeated, code)
			continue
		}
		if err := emit(code); err != nil {
			return nil, err
		}
	}
	slices.Sort(repeated)
	return repeated, nil
}

func buildFilters(ctx context.Context, files []string, opts scanOptions) ([]*bloom.BloomFilter, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(opts.Capacity, opts.FPRate)
			var count uint64
			err := streamGzFile(ctx, path, func(code string) error {
				filter.AddString(code)
				if count++; count%progressEvery == 0 {
					slog.Info("pass 1 progress", slog.String("file", path), slog.Uint64("codes", count))
				}
				return nil
			})
			if err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			slog.Info("pass 1 complete", slog.String("file", path), slog.Uint64("total_codes", count))
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return filters, nil
}

// streamGzFile calls fn for each non-blank line of a gzip-compressed file.
// Lines are trimmed; case is preserved.
func streamGzFile(ctx context.Context, path string, fn func(code string) error) error {
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
		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			continue
		}
		if err := fn(code); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// tally counts import outcomes from concurrent writers.
type tally struct {
	mu       sync.Mutex
	created  int
	existing int
	invalid  int
}

func (t *tally) add(created, existing, invalid int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.created += created
	t.existing += existing
	t.invalid += invalid
}
