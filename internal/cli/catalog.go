package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/star/ascas/internal/catalog"
)

type catalogOptions struct {
	remoteOptions
	Remote bool
	File   string
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &catalogOptions{}

	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the reference objects offered for selection",
		Long: `List the reference catalog ordered by catalog number.

Without --remote the built-in list, or the --file override, is printed.
With --remote the catalog is read from a running server.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(cmd, rootOpts, opts)
		},
	}

	addRemoteFlags(cmd, &opts.remoteOptions)
	cmd.Flags().BoolVar(&opts.Remote, "remote", false, "read the catalog from the server")
	cmd.Flags().StringVar(&opts.File, "file", "", "YAML catalog replacing the built-in list")

	return cmd
}

func runCatalog(cmd *cobra.Command, rootOpts *RootOptions, opts *catalogOptions) error {
	formatter := newFormatter(rootOpts, cmd)

	var refs []catalog.SatelliteRef
	if opts.Remote {
		ctx, cancel := context.WithTimeout(cmd.Context(), opts.Timeout)
		defer cancel()

		var err error
		if refs, err = opts.client().Catalog(ctx); err != nil {
			_ = formatter.Error(errorCode(err), err.Error(), nil)
			return WrapExitError(ExitFailure, "fetching catalog", err)
		}
	} else {
		c, err := catalog.LoadFile(opts.File)
		if err != nil {
			_ = formatter.Error("catalog", err.Error(), nil)
			return WrapExitError(ExitCommandError, "loading catalog", err)
		}
		refs = c.Sorted()
	}

	formatter.VerboseLog("%d catalog entries", len(refs))
	return formatter.Success(refs, func(w io.Writer) error {
		for _, r := range refs {
			if _, err := fmt.Fprintf(w, "%8d  %s\n", r.CatalogID, r.Name); err != nil {
				return err
			}
		}
		return nil
	})
}
