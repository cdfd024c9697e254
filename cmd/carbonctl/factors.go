package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"example.com/carbonledger/internal/emissions"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

var headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)

func newFactorsCmd() *cobra.Command {
	var (
		format   string
		category string
	)
	cmd := &cobra.Command{
		Use:   "factors",
		Short: "List emission factors in declared order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			factors := emissions.Factors()
			if category != "" {
				c := emissions.Category(category)
				if !c.Valid() {
					return fmt.Errorf("unknown category %q", category)
				}
				factors = emissions.FactorsFor(c)
			}
			return writeFactors(cmd.OutOrStdout(), format, factors)
		},
	}
	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table, json or yaml")
	cmd.Flags().StringVar(&category, "category", "", "only list factors of this category")
	return cmd
}

func writeFactors(w io.Writer, format string, factors []emissions.Factor) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(factors)
	case formatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(factors)
	case formatTable:
		t := table.New().
			Border(lipgloss.NormalBorder()).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return headerStyle
				}
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers("CATEGORY", "TYPE", "KG CO2/UNIT", "UNIT")
		for _, f := range factors {
			t.Row(string(f.Category), f.Type, strconv.FormatFloat(f.KgCO2PerUnit, 'f', -1, 64), f.Unit)
		}
		_, err := fmt.Fprintln(w, t.String())
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
