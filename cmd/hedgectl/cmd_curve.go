package main

import (
	"context"
	"math"

	"github.com/spf13/cobra"

	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/sensitivity"
)

func newCurveCmd(opts *options) *cobra.Command {
	var anchor float64

	cmd := &cobra.Command{
		Use:   "curve",
		Short: "Sample portfolio beta across nearby contract counts",
		Long: `Sample portfolio beta at 21 contract counts around an anchor.

Without --anchor the hedge is solved first and the curve is centered on the
solved contract count. With --anchor 0 the curve shows the unhedged
neighbourhood.

Examples:
  hedgectl curve
  hedgectl curve --local --anchor 0 --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			var at *float64
			if cmd.Flags().Changed("anchor") {
				at = &anchor
			}
			curve, err := sampleCurve(cmd.Context(), e, opts, at)
			if err != nil {
				return displayError(e.logger, err)
			}
			return render(cmd.OutOrStdout(), opts.output, curve, func(p *printer) { p.curve(curve) })
		},
	}
	addParamFlags(cmd, opts)
	cmd.Flags().Float64Var(&anchor, "anchor", math.NaN(), "Center the curve on this contract count instead of solving")
	return cmd
}

// sampleCurve returns the sampled curve for the flag parameters, solving
// first when no anchor is given.
func sampleCurve(ctx context.Context, e *env, opts *options, anchor *float64) (*model.SensitivityResponse, error) {
	var result *model.HedgeResult
	if anchor != nil {
		result = &model.HedgeResult{ContractsRequired: *anchor}
	} else {
		resp, err := solve(ctx, e, opts)
		if err != nil {
			return nil, err
		}
		result = &resp.HedgeResult
		// The service may have resolved the multiplier from a symbol.
		opts.params = resp.PortfolioParameters
		opts.multiplier = resp.ContractMultiplier
		opts.symbol = ""
	}

	p, err := opts.resolved()
	if err != nil {
		return nil, err
	}
	if e.remote != nil {
		return e.remote.Sensitivity(ctx, p, &result.ContractsRequired)
	}
	return &model.SensitivityResponse{
		Points:  sensitivity.Sample(p, result),
		Markers: sensitivity.Markers(p, result),
	}, nil
}
