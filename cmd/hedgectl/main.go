// Command hedgectl solves beta hedges and samples sensitivity curves, either
// against a running hedge-engine or locally.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aegis/hedge-engine/internal/client"
	"github.com/aegis/hedge-engine/internal/config"
	"github.com/aegis/hedge-engine/internal/logging"
	"github.com/aegis/hedge-engine/internal/model"
	"github.com/aegis/hedge-engine/internal/session"
)

// options are the flags shared by every command.
type options struct {
	configPath string
	server     string
	local      bool
	output     string
	logLevel   string

	params     model.PortfolioParameters
	symbol     string
	multiplier float64
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "hedgectl",
		Short: "Beta hedge calculator",
		Long: `hedgectl computes how many index futures contracts move a portfolio
from its current beta to a target beta, and how portfolio beta responds to
nearby contract counts.

Examples:
  hedgectl solve --portfolio-value 1000000 --current-beta 1.2 --target-beta 0.5 --index-price 4500 --multiplier 50
  hedgectl solve --local --contract ESZ25 --target-beta 0.8 --output json
  hedgectl curve --local --anchor -3.11
  hedgectl contracts`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "Path to config file (YAML)")
	pf.StringVar(&opts.server, "server", "", "Calculation service base URL (overrides config)")
	pf.BoolVar(&opts.local, "local", false, "Compute in-process instead of calling the service")
	pf.StringVarP(&opts.output, "output", "o", "table", "Output format (table|json|yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "Log level (debug|info|warn|error)")

	root.AddCommand(newSolveCmd(opts), newCurveCmd(opts), newContractsCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// addParamFlags registers the portfolio inputs on cmd. Defaults match the
// live session's starting form.
func addParamFlags(cmd *cobra.Command, opts *options) {
	def := session.DefaultFields.Params()
	f := cmd.Flags()
	f.Float64Var(&opts.params.PortfolioValue, "portfolio-value", def.PortfolioValue, "Portfolio value in currency units")
	f.Float64Var(&opts.params.CurrentBeta, "current-beta", def.CurrentBeta, "Current portfolio beta")
	f.Float64Var(&opts.params.TargetBeta, "target-beta", def.TargetBeta, "Target portfolio beta")
	f.Float64Var(&opts.params.IndexPrice, "index-price", def.IndexPrice, "Index level")
	f.Float64Var(&opts.multiplier, "multiplier", def.ContractMultiplier, "Contract multiplier (currency per index point)")
	f.StringVar(&opts.symbol, "contract", "", "Contract root or ticker (e.g. ES, SPZ25); overrides --multiplier")
}

// env bundles what a command needs after flags are parsed.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	calc   session.Calculator
	remote *client.Client // nil with --local
}

func (o *options) setup() (*env, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.server != "" {
		cfg.Client.BaseURL = o.server
	}

	cfg.Logging.Format = "console"
	logger, err := logging.New(cfg.Logging, o.logLevel)
	if err != nil {
		return nil, err
	}

	e := &env{cfg: cfg, logger: logger}
	if o.local {
		e.calc = session.Local
		return e, nil
	}
	e.remote = client.New(cfg.Client, client.WithLogger(logger))
	e.calc = e.remote
	return e, nil
}
