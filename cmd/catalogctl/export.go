package main

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"
	"github.com/spf13/cobra"

	"media-catalog/internal/database"
)

// stateRecord is one ledger row in the Parquet export. Metadata is the row's
// JSON metadata, empty when absent.
type stateRecord struct {
	MediaItemID int64  `parquet:"media_item_id"`
	FilePath    string `parquet:"file_path"`
	Operation   string `parquet:"operation"`
	Status      string `parquet:"status"`
	Message     string `parquet:"message"`
	Metadata    string `parquet:"metadata"`
	ProcessedAt int64  `parquet:"processed_at_ms"`
}

func toStateRecords(rows []database.ExportRow) []stateRecord {
	out := make([]stateRecord, len(rows))
	for i, r := range rows {
		out[i] = stateRecord{
			MediaItemID: r.MediaItemID,
			FilePath:    r.FilePath,
			Operation:   r.Type,
			Status:      r.Status,
			Message:     r.Message,
			Metadata:    r.Metadata,
			ProcessedAt: r.ProcessedAt.UnixMilli(),
		}
	}
	return out
}

// writeStates writes records to path, replacing any existing file.
func writeStates(path string, records []stateRecord) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	w := parquet.NewGenericWriter[stateRecord](f)
	if len(records) > 0 {
		if _, err := w.Write(records); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish parquet file: %w", err)
	}
	return nil
}

func newExportCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:     "export-states <operation>",
		Short:   "Write the operation's processing ledger to a Parquet file",
		Example: `  catalogctl export-states thumbnail --out thumbnails.parquet`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			op, err := operationArg(args)
			if err != nil {
				return err
			}
			if out == "" {
				out = string(op) + "-states.parquet"
			}

			ctx := cmd.Context()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			rows, err := c.db.ListStatesForExport(ctx, op)
			if err != nil {
				return err
			}
			if err := writeStates(out, toStateRecords(rows)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d %s ledger rows to %s\n", len(rows), op, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default <operation>-states.parquet)")
	return cmd
}
