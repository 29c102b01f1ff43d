package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/safetar/pkg/archive"
)

func newExtractCmd() *cobra.Command {
	var (
		file            string
		directory       string
		verbose         bool
		quiet           bool
		strict          bool
		manifestPath    string
		manifestRelaxed bool
		manifestSig     string
		signerKey       string
		numericOwner    bool
		noSameOwner     bool
		limits          limitFlags
	)

	cmd := &cobra.Command{
		Use:     "extract -f <archive> [flags]",
		Aliases: []string{"x"},
		Short:   "Extract an archive under a destination directory",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			markLimitFlags(cmd, &limits)

			if manifestPath != "" && (manifestSig != "" || signerKey != "") {
				if err := verifyManifestSignature(manifestPath, manifestSig, signerKey); err != nil {
					return err
				}
			}

			opts := archive.ExtractOptions{
				ArchivePath:     file,
				Destination:     directory,
				Verbose:         verbose,
				Quiet:           quiet,
				Strict:          strict,
				ManifestPath:    manifestPath,
				ManifestRelaxed: manifestRelaxed,
				NumericOwner:    numericOwner,
				NoSameOwner:     noSameOwner,
			}
			_, err = archive.Extract(opts, cfg.basePolicy(limits))
			return err
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "archive path to read")
	cmd.Flags().StringVarP(&directory, "directory", "C", "", "destination directory (default: cwd)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "emit verbose progress")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "reduce output to errors only")
	cmd.Flags().BoolVar(&strict, "strict", false, "accepted for tar compatibility; extraction always aborts on the first violation")
	cmd.Flags().StringVar(&manifestPath, "manifest", "", "verify extracted contents against this manifest JSON file")
	cmd.Flags().BoolVar(&manifestRelaxed, "manifest-relaxed", false, "tolerate extra files not listed in the manifest")
	cmd.Flags().StringVar(&manifestSig, "manifest-sig", "", "signature file for the manifest (default: <manifest>.sig)")
	cmd.Flags().StringVar(&signerKey, "signer-key", "", "SSH public key the manifest signature must verify against")
	cmd.Flags().BoolVar(&numericOwner, "numeric-owner", false, "restore ownership by uid/gid instead of names")
	cmd.Flags().BoolVar(&noSameOwner, "no-same-owner", false, "do not restore file ownership even when running as root")
	registerLimitFlags(cmd, &limits)
	cmd.MarkFlagRequired("file")

	return cmd
}
