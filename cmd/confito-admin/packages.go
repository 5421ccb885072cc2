/**
 * @description
 * The packages command, which prints the active credit package catalog as a table or JSON.
 */
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/catalog"
)

type packageRow struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CreditAmount    int64  `json:"creditAmount"`
	PriceMinorUnits int64  `json:"priceMinorUnits"`
	Currency        string `json:"currency"`
	Price           string `json:"price"`
}

func packagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "packages",
		Short: "Print the credit package catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("catalog")
			asJSON, _ := cmd.Flags().GetBool("json")

			c, err := catalog.Load(path)
			if err != nil {
				return err
			}
			return printPackages(cmd.OutOrStdout(), c, asJSON)
		},
	}

	cmd.Flags().String("catalog", os.Getenv("CATALOG_PATH"), "Catalog YAML file (defaults to the embedded catalog)")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func printPackages(out io.Writer, c *catalog.Catalog, asJSON bool) error {
	rows := make([]packageRow, 0, len(c.List()))
	for _, pkg := range c.List() {
		rows = append(rows, packageRow{
			ID:              pkg.ID,
			Name:            pkg.Name,
			CreditAmount:    pkg.CreditAmount,
			PriceMinorUnits: pkg.PriceMinorUnits,
			Currency:        pkg.Currency,
			Price:           catalog.DisplayPrice(pkg.PriceMinorUnits),
		})
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"version": c.Version(), "packages": rows})
	}

	fmt.Fprintf(out, "Catalog version %s\n\n", c.Version())
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREDITS\tPRICE")
	for _, row := range rows {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s %s\n", row.ID, row.Name, row.CreditAmount, row.Price, row.Currency)
	}
	return w.Flush()
}
