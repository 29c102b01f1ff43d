package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/safetar/pkg/archive"
)

func newListCmd() *cobra.Command {
	var (
		file    string
		verbose bool
		quiet   bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:     "list -f <archive> [flags]",
		Aliases: []string{"t"},
		Short:   "List archive contents without extracting",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := archive.ListOptions{
				ArchivePath: file,
				Verbose:     verbose,
				Quiet:       quiet,
				JSON:        asJSON,
			}
			_, err := archive.List(opts)
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "archive path to read")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show kind and size for each entry")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress per-entry output")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the entry manifest as JSON on stdout")
	cmd.MarkFlagRequired("file")

	return cmd
}
