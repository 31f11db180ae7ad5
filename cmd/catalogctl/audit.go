package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"media-catalog/internal/duplicates"
	"media-catalog/internal/operations"
)

func newValidateCmd() *cobra.Command {
	var (
		limit  int
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check thumbnail ledger rows against item paths and blob storage",
		Long: `Samples image items at random and reports where the thumbnail ledger,
the recorded thumbnail path and the thumbnail store disagree: items never
processed, successes without a path, errors with a path and paths whose blob
is gone.`,
		Example: `  # Check 500 items and fail when anything is off
  catalogctl validate --limit 500 --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			blobs, err := c.blobs(ctx)
			if err != nil {
				return err
			}
			rep, err := operations.ValidateThumbnails(ctx, c.db, blobs, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked:              %d\n", rep.TotalChecked)
			fmt.Fprintf(out, "No ledger row:        %d\n", rep.MissingState)
			fmt.Fprintf(out, "No thumbnail path:    %d\n", rep.MissingThumbnailPath)
			fmt.Fprintf(out, "Success without path: %d\n", rep.SuccessWithoutPath)
			fmt.Fprintf(out, "Error with path:      %d\n", rep.ErrorWithPath)
			fmt.Fprintf(out, "Missing blob:         %d\n", rep.MissingBlob)
			for _, is := range rep.Issues {
				fmt.Fprintf(out, "  item %d (%s): %s\n", is.ItemID, is.FileName, is.Issue)
			}
			if rep.Consistent {
				fmt.Fprintln(out, "Consistent")
				return nil
			}
			if strict {
				return fmt.Errorf("%d thumbnail issues", len(rep.Issues))
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "Items to sample")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit non-zero when any issue is found")
	return cmd
}

func newDuplicatesCmd() *cobra.Command {
	var maxDistance int

	cmd := &cobra.Command{
		Use:   "duplicates",
		Short: "List images that share or nearly share a visual hash",
		Long: `Groups analysed images by visual hash. Identical hashes form exact groups;
hashes within --max-distance bits form similar groups. Run the analysis
operation first so items carry a hash. Nothing is deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if maxDistance < 0 {
				return fmt.Errorf("--max-distance must not be negative")
			}
			ctx := cmd.Context()
			c, err := openCatalog(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			items, err := c.db.ListHashedItems(ctx)
			if err != nil {
				return err
			}
			res := duplicates.Find(items, maxDistance)

			out := cmd.OutOrStdout()
			for _, g := range res.Groups {
				fmt.Fprintf(out, "%s (distance %d):\n", g.Similarity, g.HammingDistance)
				for _, it := range g.Items {
					fmt.Fprintf(out, "  %s\n", it.FilePath)
				}
			}
			fmt.Fprintf(out, "%d groups, %d items (%d exact, %d similar)\n",
				res.Stats.TotalGroups, res.Stats.TotalDuplicateItems, res.Stats.ExactMatches, res.Stats.SimilarMatches)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDistance, "max-distance", duplicates.DefaultMaxDistance, "Largest Hamming distance grouped as similar")
	return cmd
}
