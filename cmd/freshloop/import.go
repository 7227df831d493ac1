package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/freshloop/freshloop/internal/store"
)

var importPostsFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Upsert posts from a JSON or YAML file into the store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runImport(cmd.Context(), importPostsFile, cmd.OutOrStdout())
	},
}

func init() {
	importCmd.Flags().StringVar(&importPostsFile, "posts", "", "JSON or YAML file of posts")
	_ = importCmd.MarkFlagRequired("posts")
}

func runImport(ctx context.Context, path string, stdout io.Writer) error {
	a, err := newApp(true)
	if err != nil {
		return err
	}
	defer a.close()
	if a.db == nil {
		return errors.New("DB_PATH must be set to import posts")
	}

	posts, err := loadPosts(path)
	if err != nil {
		return err
	}

	ps := store.NewPostStore(a.db)
	for i := range posts {
		if err := ps.Upsert(ctx, &posts[i]); err != nil {
			return fmt.Errorf("post %d (%s): %w", i+1, posts[i].ID, err)
		}
	}
	a.logger.Info("imported posts", "file", path, "count", len(posts))
	fmt.Fprintf(stdout, "Imported %d posts into %s\n", len(posts), a.cfg.DBPath)
	return nil
}
