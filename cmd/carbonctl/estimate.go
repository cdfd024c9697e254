package main

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"example.com/carbonledger/internal/domain"
	"example.com/carbonledger/internal/emissions"
)

type estimate struct {
	Category   emissions.Category   `json:"category"`
	Type       string               `json:"type"`
	Quantity   string               `json:"quantity"`
	Unit       string               `json:"unit"`
	Resolution emissions.Resolution `json:"resolution"`
	AppliedAs  string               `json:"appliedType,omitempty"`
	Emission   domain.Amount        `json:"carbonEmission"`
}

func newEstimateCmd() *cobra.Command {
	var (
		category string
		typ      string
		quantity string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate kg CO2 for an activity without recording it",
		Example: `  carbonctl estimate --category transport --type train --quantity 120
  carbonctl estimate --category food --quantity 2 --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c := emissions.Category(category)
			if !c.Valid() {
				return fmt.Errorf("unknown category %q", category)
			}
			q, err := decimal.NewFromString(quantity)
			if err != nil {
				return fmt.Errorf("invalid quantity %q: %w", quantity, err)
			}
			if q.IsNegative() {
				return fmt.Errorf("quantity must not be negative")
			}
			emission := emissions.ComputeEmission(c, typ, q.InexactFloat64())
			if math.IsInf(emission, 0) || math.IsNaN(emission) {
				return fmt.Errorf("quantity %s out of range", q)
			}

			factor, resolution := emissions.Resolve(c, typ)
			result := estimate{
				Category:   c,
				Type:       typ,
				Quantity:   q.String(),
				Unit:       factor.Unit,
				Resolution: resolution,
				Emission:   domain.AmountFromFloat(emission),
			}
			if resolution == emissions.ResolutionFallback {
				result.AppliedAs = factor.Type
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			}
			if result.AppliedAs != "" {
				fmt.Fprintf(out, "type %q not declared for %s, using %s\n", typ, c, result.AppliedAs)
			}
			_, err = fmt.Fprintf(out, "%s %s %s -> %s kg CO2 (%s)\n", result.Quantity, result.Unit, c, result.Emission, resolution)
			return err
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "activity category (transport, energy, food, waste, products)")
	cmd.Flags().StringVar(&typ, "type", "", "activity type within the category")
	cmd.Flags().StringVar(&quantity, "quantity", "", "quantity in the factor's unit")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the estimate as JSON")
	_ = cmd.MarkFlagRequired("category")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}
