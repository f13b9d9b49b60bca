package main

import (
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/solargrade/solargrade-server/internal/app"
	"github.com/solargrade/solargrade-server/internal/grade"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/spf13/cobra"
)

func newMigrateCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, _, err := app.OpenStore(cmd.Context(), rt.cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", rt.cfg.DBDriver)
			return nil
		},
	}
}

func newRefreshCmd(rt *runtime) *cobra.Command {
	var invalidate bool

	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Recompute vendor aggregates and publish a new ranking snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, _, svc, err := rt.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			outcome, err := svc.RefreshAndPublish(ctx)
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			if invalidate {
				rt.invalidateCache(ctx)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\nsnapshot %s: %d vendors ranked\n",
				outcome.Refresh.Message, outcome.Snapshot.ID, len(outcome.Snapshot.Entries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&invalidate, "invalidate-cache", true, "drop cached rankings and grades after publishing")
	return cmd
}

func newRankCmd(rt *runtime) *cobra.Command {
	var vendorType, minGrade string

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Print the latest published leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := service.RankFilter{VendorType: service.NormalizeVendorType(vendorType)}
			if minGrade != "" {
				g, err := grade.Parse(minGrade)
				if err != nil || !g.Rated() {
					return fmt.Errorf("%w: %q", service.ErrInvalidGradeFilter, minGrade)
				}
				filter.MinGrade = g
			}

			ctx := cmd.Context()
			db, _, svc, err := rt.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			snapshot, err := svc.GetRankings(ctx, filter)
			if err != nil {
				return err
			}
			return printRankings(cmd.OutOrStdout(), snapshot)
		},
	}
	cmd.Flags().StringVar(&vendorType, "vendor-type", "", "only rank vendors of this type")
	cmd.Flags().StringVar(&minGrade, "min-grade", "", "only rank vendors at or above this grade")
	return cmd
}

func newSeedCmd(rt *runtime) *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "seed <fixtures.yaml>",
		Short: "Load vendors and reviews from a YAML fixture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fixtures, err := loadFixtures(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			db, repo, svc, err := rt.openService(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := fixtures.apply(ctx, repo, svc)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d vendors, %d reviews\n", stats.vendors, stats.reviews)

			if !publish {
				return nil
			}
			outcome, err := svc.RefreshAndPublish(ctx)
			if err != nil {
				return fmt.Errorf("refresh failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s: %d vendors ranked\n", outcome.Snapshot.ID, len(outcome.Snapshot.Entries))
			return nil
		},
	}
	cmd.Flags().BoolVar(&publish, "publish", false, "refresh and publish rankings after seeding")
	return cmd
}

func printRankings(out io.Writer, snapshot service.RankingSnapshot) error {
	fmt.Fprintf(out, "snapshot %s generated %s\n", snapshot.ID, snapshot.GeneratedAt.Format("2006-01-02 15:04:05Z07:00"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tVENDOR\tTYPE\tSCORE\tGRADE\tREVIEWS\tCHANGE")
	for _, e := range snapshot.Entries {
		fmt.Fprintf(w, "%d\t%s\t%s\t%.1f\t%s\t%d\t%s\n",
			e.Rank, e.VendorID, e.VendorType, grade.DisplayScore(e.SolarGradeScore), e.LetterGrade, e.ReviewCount, formatChange(e))
	}
	return w.Flush()
}

func formatChange(e service.RankEntry) string {
	switch {
	case e.IsNew || e.RankChange == nil:
		return "new"
	case *e.RankChange > 0:
		return "+" + strconv.Itoa(*e.RankChange)
	default:
		return strconv.Itoa(*e.RankChange)
	}
}
