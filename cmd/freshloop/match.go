package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/freshloop/freshloop/internal/domain"
	"github.com/freshloop/freshloop/internal/service"
	"github.com/freshloop/freshloop/internal/store"
)

type matchOptions struct {
	postsFile string
	mode      string
	out       string
}

var matchOpts matchOptions

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match request posts against offer posts once and write the result",
	Long: `Match every active request against every active offer.

Posts come from --posts (JSON or YAML) or, without it, from the store at
DB_PATH. The match map is written to --out.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMatch(cmd.Context(), matchOpts, cmd.OutOrStdout())
	},
}

func init() {
	matchCmd.Flags().StringVar(&matchOpts.postsFile, "posts", "", "JSON or YAML file of posts (default: read from DB_PATH)")
	matchCmd.Flags().StringVar(&matchOpts.mode, "mode", "", "batch or sequential (default: MATCH_MODE)")
	matchCmd.Flags().StringVar(&matchOpts.out, "out", "ingredient_matches.json", "file to write the match map to")
}

func runMatch(ctx context.Context, opts matchOptions, stdout io.Writer) error {
	a, err := newApp(opts.postsFile == "")
	if err != nil {
		return err
	}
	defer a.close()

	var posts []domain.Post
	if opts.postsFile != "" {
		if posts, err = loadPosts(opts.postsFile); err != nil {
			return err
		}
		a.logger.Info("loaded posts", "file", opts.postsFile, "count", len(posts))
	}

	gen, err := newGenerator(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}
	engine, err := newEngine(gen, a.cfg, a.logger)
	if err != nil {
		return err
	}

	mode := domain.MatchMode(a.cfg.MatchMode)
	svc := service.NewMatchService(engine, nil, mode, a.logger)
	if a.db != nil {
		svc = service.NewMatchService(engine, store.NewPostStore(a.db), mode, a.logger)
	}

	res, err := svc.MatchAll(ctx, posts, domain.MatchMode(opts.mode))
	if err != nil {
		return err
	}

	printSummary(stdout, res)
	if res.Message != "" {
		return nil
	}
	return writeMatches(opts.out, res)
}

func printSummary(w io.Writer, res *service.MatchAllResult) {
	st := res.Stats
	fmt.Fprintf(w, "Mode:                  %s\n", st.Mode)
	fmt.Fprintf(w, "Requests:              %d\n", st.TotalRequests)
	fmt.Fprintf(w, "Offers:                %d\n", st.TotalOffers)
	if res.Message != "" {
		fmt.Fprintln(w, res.Message)
		return
	}
	fmt.Fprintf(w, "Matches:               %d\n", st.TotalMatches)
	fmt.Fprintf(w, "Requests with matches: %d\n", st.RequestsWithMatches)
	fmt.Fprintf(w, "Processing time:       %.2fs\n", st.ProcessingTimeSeconds)

	ids := make([]string, 0, len(res.Matches))
	for id := range res.Matches {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ms := res.Matches[id]
		if len(ms) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s (%s):\n", id, ms[0].Request.UserID)
		for _, m := range ms {
			fmt.Fprintf(w, "  %3d  %s from %s: %s\n", m.MatchScore, m.Offer.PostID, m.Offer.UserID, m.Reason)
		}
	}
}

func writeMatches(path string, res *service.MatchAllResult) error {
	data, err := json.MarshalIndent(res.Matches, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode matches: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
