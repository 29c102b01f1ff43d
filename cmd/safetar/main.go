package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/safetar/pkg/archive"
	"github.com/odvcencio/safetar/pkg/manifest"
	"github.com/odvcencio/safetar/pkg/policy"
)

func main() {
	root := &cobra.Command{
		Use:           "safetar",
		Short:         "Secure-by-default tar-compatible archiver",
		Long:          "A drop-in tar replacement that enables strict safety policies by default.",
		Example: "  safetar create -f backup.tar ./src\n" +
			"  safetar extract -f backup.tar -C ./restore --strict\n" +
			"  safetar list -f backup.tar --json",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newCreateCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newListCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "safetar: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps failure classes onto process exit codes: policy and
// manifest violations share one code, user-input errors another, and
// anything else (I/O and friends) the default. The core never terminates
// the process; this boundary is the only place that selects codes.
func exitCode(err error) int {
	var violation *policy.Violation
	var verify *manifest.VerifyError
	var input *archive.UserInputError
	switch {
	case errors.As(err, &violation), errors.As(err, &verify):
		return 3
	case errors.As(err, &input):
		return 2
	default:
		return 1
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("safetar 0.1.0-dev")
		},
	}
}
