package main

import (
	"github.com/spf13/cobra"

	"github.com/odvcencio/safetar/pkg/archive"
	"github.com/odvcencio/safetar/pkg/compress"
)

func newCreateCmd() *cobra.Command {
	var (
		file        string
		directory   string
		verbose     bool
		quiet       bool
		gzipFlag    bool
		xzFlag      bool
		zstdFlag    bool
		excludes    []string
		excludeFrom []string
		manifestOut string
		signKey     string
		printPlan   bool
		limits      limitFlags

		// Accepted for surface compatibility with extract; ownership is
		// never recorded in created archives.
		numericOwner bool
		noSameOwner  bool
	)

	cmd := &cobra.Command{
		Use:     "create -f <archive> [flags] <paths...>",
		Aliases: []string{"c"},
		Short:   "Create an archive from files or directories",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			markLimitFlags(cmd, &limits)

			codec, err := resolveCodec(cfg, gzipFlag, xzFlag, zstdFlag)
			if err != nil {
				return err
			}

			opts := archive.CreateOptions{
				ArchivePath: file,
				Inputs:      args,
				WorkDir:     directory,
				Codec:       codec,
				Verbose:     verbose,
				Quiet:       quiet,
				PrintPlan:   printPlan,
				Excludes:    append(append([]string{}, cfg.Create.Exclude...), excludes...),
				ExcludeFrom: excludeFrom,
				ManifestOut: manifestOut,
			}
			if _, err := archive.Create(opts, cfg.basePolicy(limits)); err != nil {
				return err
			}
			if signKey != "" && manifestOut != "" && !printPlan {
				return signManifest(manifestOut, signKey)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "archive path to write")
	cmd.Flags().StringVarP(&directory, "directory", "C", "", "change to this directory before resolving inputs")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "emit verbose progress")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "reduce output to errors only")
	cmd.Flags().BoolVarP(&gzipFlag, "gzip", "z", false, "enable gzip compression")
	cmd.Flags().BoolVarP(&xzFlag, "xz", "J", false, "enable xz compression")
	cmd.Flags().BoolVar(&zstdFlag, "zstd", false, "enable zstd compression")
	cmd.Flags().StringArrayVar(&excludes, "exclude", nil, "exclude entries matching these glob patterns")
	cmd.Flags().StringArrayVar(&excludeFrom, "exclude-from", nil, "read exclude patterns from these files")
	cmd.Flags().StringVar(&manifestOut, "manifest-out", "", "write a manifest JSON file describing archive contents")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "SSH private key used to sign the emitted manifest")
	cmd.Flags().BoolVar(&printPlan, "print-plan", false, "preview entries without writing the archive")
	cmd.Flags().BoolVar(&numericOwner, "numeric-owner", false, "track numeric owner values")
	cmd.Flags().BoolVar(&noSameOwner, "no-same-owner", false, "do not attempt to restore owners")
	registerLimitFlags(cmd, &limits)
	cmd.MarkFlagRequired("file")

	return cmd
}

// resolveCodec reconciles compression flags: exactly one flag picks that
// codec, none falls back to the config default, multiple resolve to zstd.
func resolveCodec(cfg *fileConfig, gzipFlag, xzFlag, zstdFlag bool) (compress.Codec, error) {
	set := 0
	for _, b := range []bool{gzipFlag, xzFlag, zstdFlag} {
		if b {
			set++
		}
	}
	switch {
	case set > 1:
		return compress.Zstd, nil
	case gzipFlag:
		return compress.Gzip, nil
	case xzFlag:
		return compress.Xz, nil
	case zstdFlag:
		return compress.Zstd, nil
	default:
		return cfg.defaultCodec()
	}
}

func registerLimitFlags(cmd *cobra.Command, limits *limitFlags) {
	cmd.Flags().Uint64Var(&limits.maxFiles, "max-files", 0, "maximum number of filesystem entries processed")
	cmd.Flags().Uint64Var(&limits.maxTotalBytes, "max-total-bytes", 0, "maximum total uncompressed bytes processed")
	cmd.Flags().Uint64Var(&limits.maxSingleFile, "max-single-file", 0, "maximum single file size allowed")
	cmd.Flags().IntVar(&limits.maxDepth, "max-depth", 0, "maximum directory depth relative to the root")
}

func markLimitFlags(cmd *cobra.Command, limits *limitFlags) {
	limits.maxFilesSet = cmd.Flags().Changed("max-files")
	limits.maxTotalBytesSet = cmd.Flags().Changed("max-total-bytes")
	limits.maxSingleFileSet = cmd.Flags().Changed("max-single-file")
	limits.maxDepthSet = cmd.Flags().Changed("max-depth")
}
