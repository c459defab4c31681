package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/aegis/hedge-engine/internal/contract"
	"github.com/aegis/hedge-engine/internal/model"
)

var (
	shortColor = color.New(color.FgRed, color.Bold)
	longColor  = color.New(color.FgGreen, color.Bold)
	noneColor  = color.New(color.FgYellow)
)

// render writes v as json or yaml, or calls table for the human format.
func render(w io.Writer, format string, v any, table func(*printer)) error {
	switch strings.ToLower(format) {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(toYAML(v))
	case "table", "":
		p := &printer{tw: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)}
		table(p)
		return p.tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

// toYAML round-trips v through JSON so the yaml output uses the same
// snake_case keys.
func toYAML(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}

type printer struct {
	tw *tabwriter.Writer
}

func (p *printer) row(cols ...any) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprint(p.tw, "\t")
		}
		fmt.Fprint(p.tw, c)
	}
	fmt.Fprintln(p.tw)
}

func actionLabel(a model.Action) string {
	switch a {
	case model.ActionShort:
		return shortColor.Sprint(a)
	case model.ActionLong:
		return longColor.Sprint(a)
	default:
		return noneColor.Sprint(a)
	}
}

func (p *printer) hedge(r *model.HedgeResponse) {
	if r.CalculationID != "" {
		p.row("Calculation", r.CalculationID)
	}
	p.row("Portfolio value", fmt.Sprintf("%.2f", r.PortfolioValue))
	p.row("Current beta", r.CurrentBeta)
	p.row("Target beta", r.TargetBeta)
	p.row("Contract value", fmt.Sprintf("%.2f", r.FuturesContractValue))
	p.row("Contracts", fmt.Sprintf("%.4f", r.ContractsRequired))
	p.row("Action", actionLabel(r.Action))
	p.row("")
	p.row(r.Message)
}

func (p *printer) curve(c *model.SensitivityResponse) {
	if len(c.Points) == 0 {
		p.row("No data: enter valid parameters to plot the curve.")
		return
	}

	target := math.NaN()
	for _, m := range c.Markers {
		if m.Label == "target" {
			target = m.Contracts
		}
	}

	p.row("CONTRACTS", "BETA", "")
	for _, pt := range c.Points {
		mark := ""
		if pt.Contracts == 0 {
			mark = "◀ current"
		}
		if !math.IsNaN(target) && int(math.Round(target)) == pt.Contracts {
			mark = strings.TrimSpace(mark + " ◀ target")
		}
		p.row(pt.Contracts, fmt.Sprintf("%.3f", pt.Beta), mark)
	}
}

func (p *printer) contracts(specs []contract.Spec) {
	p.row("ROOT", "NAME", "INDEX", "CCY", "MULTIPLIER", "TICK", "TICK VALUE")
	for _, s := range specs {
		p.row(s.Root, s.Name, s.Index, s.Currency, s.Multiplier.String(), s.TickSize.String(), s.TickValue().StringFixed(2))
	}
}
