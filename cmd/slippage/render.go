package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"

	"slippageScope/internal/model"
	"slippageScope/internal/slippage"
)

func render(w io.Writer, format string, report model.RunReport) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	return renderTables(w, report)
}

func renderTables(w io.Writer, report model.RunReport) error {
	fmt.Fprintf(w, "\nrun %s  pool %s  block %d  fee %d  spacing %d\n",
		report.RunID, report.PoolID, report.Block, report.Initial.Fee, report.Initial.TickSpacing)

	priceLabel := fmt.Sprintf("Price (%s in %s)", report.Token1.Key(), report.Token0.Key())
	states := tablewriter.NewWriter(w)
	states.Header("Stage", "Tick", "Liquidity", priceLabel)
	states.Append(stateRow("initial", report.Initial)...)
	if report.PostLiquidity != nil {
		states.Append(stateRow("post-lp", *report.PostLiquidity)...)
	}
	if report.PostTrade != nil {
		states.Append(stateRow("post-trade", *report.PostTrade)...)
	}
	if err := states.Render(); err != nil {
		return err
	}

	if len(report.Actions) > 0 {
		actions := tablewriter.NewWriter(w)
		actions.Header("#", "Agent", "Kind", "In", "Out", "Used0", "Used1", "Ticks")
		for _, a := range report.Actions {
			in, out := "", ""
			if a.Kind == model.ActionTrade {
				in = a.AmountIn.String() + " " + a.TokenIn
				out = a.AmountOut.String() + " " + a.TokenOut
			}
			actions.Append(
				strconv.Itoa(a.Index),
				a.Agent,
				string(a.Kind),
				in,
				out,
				a.Used0.String(),
				a.Used1.String(),
				strconv.Itoa(a.TicksCrossed),
			)
		}
		if err := actions.Render(); err != nil {
			return err
		}
	}

	if report.Slippage != nil {
		s := report.Slippage
		result := tablewriter.NewWriter(w)
		result.Header("Quoted", "Effective", "Slippage", "Price impact")
		result.Append(
			formatPrice(s.QuotedPrice),
			formatPrice(s.EffectivePrice),
			slippage.Percent(s.SlippageFraction, 4),
			slippage.Percent(s.PriceImpactFraction, 4),
		)
		if err := result.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w, "  Slippage includes the pool fee; price impact excludes it.")
	}
	return nil
}

func stateRow(stage string, state model.PoolState) []any {
	liquidity := ""
	if state.Liquidity != nil {
		liquidity = state.Liquidity.String()
	}
	return []any{stage, strconv.Itoa(int(state.Tick)), liquidity, formatPrice(state.Price)}
}

// formatPrice keeps 8 decimal places, or 8 significant digits for prices below 1.
func formatPrice(price decimal.Decimal) string {
	if price.IsZero() {
		return "0"
	}
	places := int32(8)
	if lead := int32(price.NumDigits()) + price.Exponent() - 1; lead < 0 {
		places = 7 - lead
	}
	return price.StringFixed(places)
}
