package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"media-catalog/internal/abort"
	"media-catalog/internal/batch"
	"media-catalog/internal/database"
	"media-catalog/internal/filetypes"
	"media-catalog/internal/indexer"
	"media-catalog/internal/media"
	"media-catalog/internal/operations"
	"media-catalog/internal/startup"
	"media-catalog/internal/storage"
	"media-catalog/internal/streaming"
)

// catalog is the local database and the components built on it.
type catalog struct {
	config   *startup.Config
	db       *database.Database
	resolver *filetypes.Resolver
}

func openCatalog(ctx context.Context) (*catalog, error) {
	config, err := startup.Parse()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.DatabaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("database directory: %w", err)
	}

	db, err := database.New(ctx, config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", config.DatabasePath, err)
	}
	if _, err := db.SeedFileTypes(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("seed file types: %w", err)
	}

	return &catalog{config: config, db: db, resolver: filetypes.NewResolver(db)}, nil
}

func (c *catalog) Close() error {
	return c.db.Close()
}

// blobs opens the configured thumbnail store.
func (c *catalog) blobs(ctx context.Context) (storage.Store, error) {
	var blobs storage.Store
	var err error
	if c.config.ThumbnailStore == "s3" {
		blobs, err = storage.NewS3Store(ctx, storage.S3Options{
			Bucket:    c.config.S3.Bucket,
			Region:    c.config.S3.Region,
			Endpoint:  c.config.S3.Endpoint,
			AccessKey: c.config.S3.AccessKey,
			SecretKey: c.config.S3.SecretKey,
			Prefix:    c.config.S3.Prefix,
		})
	} else {
		blobs, err = storage.NewLocalStore(c.config.ThumbnailDir)
	}
	if err != nil {
		return nil, fmt.Errorf("thumbnail store: %w", err)
	}
	return blobs, nil
}

// runner builds a Runner with an in-process abort registry. Thumbnails go to
// the configured store.
func (c *catalog) runner(ctx context.Context, useVips bool) (*operations.Runner, error) {
	blobs, err := c.blobs(ctx)
	if err != nil {
		return nil, err
	}

	return operations.NewRunner(c.db, c.resolver, abort.NewRegistry(nil, c.config.AbortTokenTTL),
		operations.Deps{Blobs: blobs, Thumbnailer: media.NewThumbnailer(c.config.ThumbnailSize, useVips)},
		batch.Options{
			BatchSize:          c.config.BatchSize,
			FetchSize:          c.config.MaxFetchSize,
			ProgressEvery:      c.config.ProgressEvery,
			LargeFileThreshold: c.config.LargeFileThreshold,
			SkipLargeFiles:     c.config.SkipLargeFiles,
		}), nil
}

func newProcessCmd() *cobra.Command {
	var (
		all            bool
		batchSize      int
		retryFailed    bool
		skipLargeFiles bool
		method         string
		overwrite      bool
		token          string
	)

	cmd := &cobra.Command{
		Use:   "process <operation>",
		Short: "Run a batch against the local catalog and print progress frames",
		Long: `Runs one batch of the operation against the local catalog database and
writes its progress frames to stdout in the same format the server streams.

Interrupt (Ctrl+C) aborts the run; items not yet reached stay eligible.`,
		Example: `  # Extract EXIF from the next batch
  catalogctl process exif

  # Generate every missing thumbnail, retrying earlier failures
  catalogctl process thumbnail --all --retry-failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := operationArg(args)
			if err != nil {
				return err
			}
			exifMethod, ok := media.ParseExifMethod(method)
			if !ok {
				return fmt.Errorf("--method must be one of default, fast, slow")
			}

			ctx := cmd.Context()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			useVips := false
			if c.config.VipsEnabled && op == database.OpThumbnail {
				if err := media.InitVips(); err == nil {
					useVips = true
					defer media.ShutdownVips()
				}
			}

			runner, err := c.runner(ctx, useVips)
			if err != nil {
				return err
			}

			opts := runner.Defaults()
			opts.All = all
			opts.RetryFailed = retryFailed
			opts.SkipLargeFiles = opts.SkipLargeFiles || skipLargeFiles
			if batchSize > 0 {
				opts.BatchSize = batchSize
			}
			params := operations.Params{Overwrite: overwrite}
			if op == database.OpExif {
				params.Method = exifMethod
				opts.Method = string(exifMethod)
			}

			run, err := runner.Begin(ctx, token)
			if err != nil {
				return err
			}
			sum, err := runner.Run(run, op, opts, params, streaming.NewFrameWriter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), sum)
			if sum.State == batch.StateFailed {
				return fmt.Errorf("run failed: %s", sum.Error)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Keep fetching pages until nothing is eligible")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Items per page (default BATCH_SIZE)")
	cmd.Flags().BoolVar(&retryFailed, "retry-failed", false, "Include items whose last attempt failed")
	cmd.Flags().BoolVar(&skipLargeFiles, "skip-large-files", false, "Skip files over LARGE_FILE_THRESHOLD")
	cmd.Flags().StringVar(&method, "method", "default", "EXIF extraction method (default, fast, slow)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Let timestamp_correction replace dates taken from EXIF")
	cmd.Flags().StringVar(&token, "token", "", "Abort token for the run (default: random)")

	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <operation>",
		Short: "Show ledger counts and remaining items for an operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := operationArg(args)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			counts, err := c.db.CountStates(ctx, op)
			if err != nil {
				return err
			}
			runner, err := c.runner(ctx, false)
			if err != nil {
				return err
			}
			operation, err := runner.Operation(op, operations.Params{})
			if err != nil {
				return err
			}
			remaining, err := c.db.CountEligible(ctx, op, false, operation.Categories())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Operation: %s\n", op)
			statuses := make([]string, 0, len(counts))
			for status := range counts {
				statuses = append(statuses, string(status))
			}
			sort.Strings(statuses)
			for _, s := range statuses {
				fmt.Fprintf(out, "  %-10s %d\n", s, counts[database.Status(s)])
			}
			fmt.Fprintf(out, "Remaining: %d\n", remaining)
			if last, err := c.db.GetLastRun(ctx, op); err == nil && !last.IsZero() {
				fmt.Fprintf(out, "Last run:  %s\n", last.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func newResetCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "reset <operation>",
		Short: "Delete ledger rows so items are processed again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := operationArg(args)
			if err != nil {
				return err
			}
			var statuses []database.Status
			if status != "" {
				s, ok := database.ParseStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				statuses = append(statuses, s)
			}

			ctx := cmd.Context()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			n, err := c.db.ResetProcessingStates(ctx, op, statuses...)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Reset %d %s ledger rows\n", n, op)
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only reset rows with this status")
	return cmd
}

func newScanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Index MEDIA_DIR and the configured scan folders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			idx := indexer.New(c.db, c.config.MediaDir, 0, c.resolver)
			res, err := idx.Scan(ctx, streaming.NewFrameWriter(cmd.OutOrStdout()))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Scanned %d roots: %d found, %d added, %d unchanged, %d removed, %d failed in %v\n",
				res.Roots, res.Found, res.Added, res.Unchanged, res.Removed, res.Failed, res.Duration.Round(time.Millisecond))
			return nil
		},
	}
}
