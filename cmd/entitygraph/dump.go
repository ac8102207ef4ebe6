package main

import (
	"github.com/spf13/cobra"

	"github.com/surrealdb/entitygraph/contrib/entitydump"
	"github.com/surrealdb/entitygraph/pkg/bulk"
)

func newDumpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dump <file>",
		Short: "Write every document of the store to a JSON lines file",
		Long: `Write every live document of the store to a JSON lines file, with a
<file>.manifest.json holding the document count and a sha256 checksum.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := entitydump.DumpFile(cmd.Context(), a.store, args[0],
				entitydump.WithLogger(a.logData.Handler()))
			if err != nil {
				return err
			}
			return printJSON(cmd, manifest)
		},
	}
}

func newRestoreCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <file>",
		Short: "Write the documents of a dump back into the store",
		Long: `Check a dump against its manifest and write its documents into the store.
Documents that already exist are overwritten.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.logData.Handler()
			writer := bulk.New(a.store,
				bulk.WithChunkSize(a.conf.Bulk.ChunkSize),
				bulk.WithConcurrency(a.conf.Bulk.Concurrency),
				bulk.WithLogger(log),
			)
			res, err := entitydump.RestoreFile(cmd.Context(), writer, args[0], entitydump.WithLogger(log))
			if res != nil {
				if perr := printJSON(cmd, map[string]any{"restored": res.Restored, "failed": len(res.Failed)}); perr != nil {
					return perr
				}
			}
			return err
		},
	}
}
