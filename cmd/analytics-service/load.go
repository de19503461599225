package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/calendar"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/warehouse"
)

func newLoadCmd(a *app) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a JSON batch of customers, products, orders and events",
		Long: "Load reads a batch keyed by natural keys (customer email, product sku), fills the " +
			"date dimension for its horizon and writes dimensions before facts. Use --file - for stdin.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var in io.Reader = cmd.InOrStdin()
			if file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("failed to open batch: %w", err)
				}
				defer f.Close()
				in = f
			}

			batch, err := warehouse.DecodeBatch(in)
			if err != nil {
				return err
			}

			pg, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()

			loader := warehouse.NewLoader(
				warehouse.NewService(warehouse.NewRepository(pg.Pool)),
				calendar.NewRepository(pg.Pool),
			)
			res, err := loader.Load(cmd.Context(), batch)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "batch file, or - for stdin")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
