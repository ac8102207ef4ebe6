package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/surrealdb/entitygraph"
	"github.com/surrealdb/entitygraph/pkg/docstore"
	"github.com/surrealdb/entitygraph/pkg/models"
)

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	var (
		configPath string
		actor      string
	)

	rootCmd := &cobra.Command{
		Use:   "entitygraph",
		Short: "Entity graph operations over a document store",
		Long: `entitygraph reads and writes typed entities that reference each other.

The store, schema directory and tuning knobs come from a YAML config file,
overridden by ENTITYGRAPH_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.start(cmd.Context(), configPath); err != nil {
				return err
			}
			if actor != "" {
				cmd.SetContext(entitygraph.WithActor(cmd.Context(), actor))
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("ENTITYGRAPH_CONFIG"), "config file")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "user id stamped on writes")

	rootCmd.AddCommand(
		newCreateCmd(a),
		newUpdateCmd(a),
		newDeleteCmd(a),
		newReadCmd(a),
		newListCmd(a),
		newRevisionsCmd(a),
		newSearchCmd(a),
		newFindCmd(a),
		newDumpCmd(a),
		newRestoreCmd(a),
	)
	return rootCmd
}

// readFlags are the graph resolution flags shared by every read command.
type readFlags struct {
	role     string
	sel      string
	depth    int
	children []string
	parents  bool
	parentQs []string
}

func (f *readFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.role, "role", string(models.RoleGuest), "viewer role: guest, user or super")
	cmd.Flags().StringVarP(&f.sel, "select", "s", "", "projection expression, e.g. \"title,author(name)\"")
	cmd.Flags().IntVarP(&f.depth, "depth", "d", 0, "child expansion depth")
	cmd.Flags().StringArrayVar(&f.children, "children", nil, "child selector per depth level (repeatable)")
	cmd.Flags().BoolVar(&f.parents, "parents", false, "attach entities referencing each result")
	cmd.Flags().StringArrayVar(&f.parentQs, "parent-select", nil, "projection applied to parents (repeatable)")
}

func (f *readFlags) options() (models.ReadOptions, error) {
	role := models.Role(f.role)
	switch role {
	case models.RoleGuest, models.RoleUser, models.RoleSuper:
	default:
		return models.ReadOptions{}, fmt.Errorf("unknown role %q", f.role)
	}

	opts := models.ReadOptions{Select: f.sel, Role: role}
	if len(f.children) > 0 {
		opts.Children = models.ChildQueries(f.children...)
	} else {
		opts.Children = models.ChildDepth(f.depth)
	}
	if f.parents || len(f.parentQs) > 0 {
		opts.Parents = models.WithParents(f.parentQs...)
	}
	return opts, nil
}

// parseSort turns "-title" into a descending sort on title.
func parseSort(fields []string) []docstore.SortField {
	out := make([]docstore.SortField, 0, len(fields))
	for _, f := range fields {
		if name, ok := strings.CutPrefix(f, "-"); ok {
			out = append(out, docstore.SortField{Field: name, Desc: true})
			continue
		}
		out = append(out, docstore.SortField{Field: strings.TrimPrefix(f, "+")})
	}
	return out
}

// readDocuments decodes a document or an array of documents from the named
// file, or from stdin when name is "-" or empty.
func readDocuments(cmd *cobra.Command, name string) ([]models.Document, error) {
	var r io.Reader = cmd.InOrStdin()
	if name != "" && name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	data = []byte(strings.TrimSpace(string(data)))
	if len(data) > 0 && data[0] == '[' {
		var docs []models.Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("failed to parse documents: %w", err)
		}
		return docs, nil
	}
	var doc models.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	return []models.Document{doc}, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
