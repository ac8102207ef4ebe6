package main

import (
	"github.com/spf13/cobra"
)

func newReadCmd(a *app) *cobra.Command {
	var flags readFlags
	cmd := &cobra.Command{
		Use:   "read <id>",
		Short: "Read one entity with its resolved references",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			doc, err := a.client.Read(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}
	flags.register(cmd)
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var flags readFlags
	cmd := &cobra.Command{
		Use:   "list <id>...",
		Short: "Read several entities, in the given order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.options()
			if err != nil {
				return err
			}
			docs, err := a.client.List(cmd.Context(), args, opts)
			if err != nil {
				return err
			}
			return printJSON(cmd, docs)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRevisionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "revisions <id>",
		Short: "Show the stored revisions of an entity, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := a.client.Revisions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, docs)
		},
	}
}
