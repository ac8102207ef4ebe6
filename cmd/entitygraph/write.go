package main

import (
	"github.com/spf13/cobra"
)

func newCreateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create [file]",
		Short: "Create entities",
		Long: `Create one entity or an array of entities read from a JSON file or stdin.

Example:
  entitygraph create article.json
  echo '{"type":"article","headline":"Hi"}' | entitygraph create`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := readDocuments(cmd, firstArg(args))
			if err != nil {
				return err
			}
			created, err := a.client.Create(cmd.Context(), docs...)
			if perr := printJSON(cmd, created); perr != nil {
				return perr
			}
			return err
		},
	}
}

func newUpdateCmd(a *app) *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "update [file]",
		Short: "Merge patches into existing entities",
		Long: `Merge one patch or an array of patches into the entities named by their _id.
Arrays in a patch replace the stored array. Changes to published, slug, title
and thumbnail are copied into every entity that references the updated one.

Example:
  entitygraph update patch.json
  entitygraph update --restore trashed.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			patches, err := readDocuments(cmd, firstArg(args))
			if err != nil {
				return err
			}
			updated, err := a.client.Update(cmd.Context(), patches, restore)
			if perr := printJSON(cmd, updated); perr != nil {
				return perr
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&restore, "restore", false, "take the entities out of the trash")
	return cmd
}

func newDeleteCmd(a *app) *cobra.Command {
	var forever bool
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Trash or permanently delete entities",
		Long: `Move entities to the trash, or delete them permanently with --forever.

Permanent deletion removes every reference to the entities and the media files
they own. The single id "trashed" selects everything in the trash.

Example:
  entitygraph delete 3f2a...
  entitygraph delete --forever trashed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.client.Delete(cmd.Context(), args, forever)
			if err != nil {
				return err
			}
			return printJSON(cmd, res)
		},
	}
	cmd.Flags().BoolVar(&forever, "forever", false, "delete permanently instead of trashing")
	return cmd
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
