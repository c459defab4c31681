package main

import (
	"github.com/spf13/cobra"

	"github.com/aegis/hedge-engine/internal/contract"
)

func newContractsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "contracts [symbol]",
		Short: "List index futures contracts, or show one",
		Long: `List the known index futures contracts and their multipliers. With a
symbol (root or ticker such as ESZ25), show that contract only.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			var specs []contract.Spec
			switch {
			case len(args) == 1:
				// Symbols resolve the same way everywhere.
				spec, err := contract.Resolve(args[0])
				if err != nil {
					return err
				}
				specs = []contract.Spec{spec}
			case e.remote != nil:
				specs, err = e.remote.Contracts(cmd.Context())
				if err != nil {
					return displayError(e.logger, err)
				}
			default:
				specs = contract.Catalog()
			}
			return render(cmd.OutOrStdout(), opts.output, specs, func(p *printer) { p.contracts(specs) })
		},
	}
}
