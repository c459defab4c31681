package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegis/hedge-engine/internal/contract"
	"github.com/aegis/hedge-engine/internal/hedge"
	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/session"
)

func newSolveCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve",
		Short: "Compute the futures hedge for a target beta",
		Long: `Compute the signed number of index futures contracts that moves the
portfolio from its current beta to the target beta.

Examples:
  hedgectl solve --target-beta 0.5
  hedgectl solve --contract SP --index-price 4500 --output yaml
  hedgectl solve --local --current-beta 0.8 --target-beta 1.0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := opts.setup()
			if err != nil {
				return err
			}
			defer e.logger.Sync()

			resp, err := solve(cmd.Context(), e, opts)
			if err != nil {
				return displayError(e.logger, err)
			}
			return render(cmd.OutOrStdout(), opts.output, resp, func(p *printer) { p.hedge(resp) })
		},
	}
	addParamFlags(cmd, opts)
	return cmd
}

// solve runs one calculation locally or remotely. A contract symbol is
// resolved locally, or passed through to the service, which resolves it.
func solve(ctx context.Context, e *env, opts *options) (*model.HedgeResponse, error) {
	if e.remote != nil {
		req := model.NewHedgeRequest(opts.params)
		req.ContractMultiplier = &opts.multiplier
		if opts.symbol != "" {
			req.ContractMultiplier = nil
			req.ContractSymbol = opts.symbol
		}
		return e.remote.CalculateHedge(ctx, req)
	}

	p, err := opts.resolved()
	if err != nil {
		return nil, err
	}
	res, err := e.calc.Calculate(ctx, p)
	if err != nil {
		return nil, err
	}
	return &model.HedgeResponse{
		HedgeResult:          *res,
		PortfolioParameters:  p,
		FuturesContractValue: p.FuturesContractValue(),
	}, nil
}

// resolved returns the flag parameters with the multiplier filled in from
// --contract when given.
func (o *options) resolved() (model.PortfolioParameters, error) {
	p := o.params
	p.ContractMultiplier = o.multiplier
	if o.symbol != "" {
		mult, err := contract.Multiplier(o.symbol)
		if err != nil {
			return p, err
		}
		p.ContractMultiplier = mult
	}
	return p, nil
}

// displayError reduces err to the text a user should see and logs the rest.
func displayError(logger *zap.Logger, err error) error {
	logger.Debug("command failed", zap.Error(err))

	var inv *hedge.InvalidInputError
	if errors.As(err, &inv) || errors.Is(err, contract.ErrUnknownContract) || errors.Is(err, contract.ErrInvalidTicker) {
		return err
	}
	return errors.New(session.ErrorDetail(err))
}
