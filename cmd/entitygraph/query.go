package main

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/surrealdb/entitygraph/pkg/docstore"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		flags    readFlags
		sort     []string
		limit    int
		bookmark string
		group    string
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over entities",
		Long: `Search entities with a field:value query. Guests only see published,
untrashed entities.

Example:
  entitygraph search "type:article" --sort -title --limit 20
  entitygraph search "type:article" --group type --role user`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			q := docstore.SearchQuery{
				Query:      strings.Join(args, " "),
				Sort:       sort,
				Bookmark:   bookmark,
				GroupField: group,
			}
			res, err := a.client.Search(cmd.Context(), q, limit, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&sort, "sort", nil, "sort fields, prefix with - for descending")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of rows, 0 for one page")
	cmd.Flags().StringVar(&bookmark, "bookmark", "", "continue after a previous page")
	cmd.Flags().StringVar(&group, "group", "", "group rows by this field")
	return cmd
}

func newFindCmd(a *app) *cobra.Command {
	var (
		flags  readFlags
		sort   []string
		fields []string
		limit  int
		skip   int
	)
	cmd := &cobra.Command{
		Use:   "find <selector>",
		Short: "Find entities matching a mango selector",
		Long: `Find entities matching a JSON selector.

Example:
  entitygraph find '{"type":"article","rating":{"$gt":3}}' --sort -rating`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			var selector map[string]any
			if err := json.Unmarshal([]byte(args[0]), &selector); err != nil {
				return fmt.Errorf("failed to parse selector: %w", err)
			}
			q := docstore.FindQuery{
				Selector: selector,
				Fields:   fields,
				Sort:     parseSort(sort),
				Limit:    limit,
				Skip:     skip,
			}
			res, err := a.client.Find(cmd.Context(), q, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, res.Docs)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringSliceVar(&sort, "sort", nil, "sort fields, prefix with - for descending")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "top-level fields to return")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of documents")
	cmd.Flags().IntVar(&skip, "skip", 0, "documents to skip")
	return cmd
}
