package commands

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/calcsite/calculator-sdk-go/calculator"
)

// ListOptions holds options for the list command
type ListOptions struct {
	Category string
	Featured bool
	Search   string
	Page     int
	Limit    int
}

// NewListCommand creates the list command
func NewListCommand(global *GlobalOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available calculators",
		Example: `  # All finance calculators
  calculator list --category finance

  # Featured calculators only, as JSON
  calculator list --featured --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filters := opts.filters(cmd)
			return runList(cmd, global, filters)
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "Only calculators in this category")
	cmd.Flags().BoolVar(&opts.Featured, "featured", false, "Only featured (or, with =false, non-featured) calculators")
	cmd.Flags().StringVarP(&opts.Search, "search", "s", "", "Free-text search")
	cmd.Flags().IntVar(&opts.Page, "page", 0, "Page number")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "Page size")

	return cmd
}

func (o *ListOptions) filters(cmd *cobra.Command) calculator.ListFilters {
	f := calculator.ListFilters{
		Category: o.Category,
		Search:   o.Search,
		Page:     o.Page,
		Limit:    o.Limit,
	}
	if cmd.Flags().Changed("featured") {
		featured := o.Featured
		f.Featured = &featured
	}
	return f
}

func runList(cmd *cobra.Command, global *GlobalOptions, filters calculator.ListFilters) error {
	client, cleanup, err := global.newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	if global.JSON {
		raw, err := client.ListCalculatorsRaw(cmd.Context(), filters.Map())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}

	list, err := client.ListCalculators(cmd.Context(), filters.Map())
	if err != nil {
		return err
	}
	return printCalculators(out, list)
}

func printCalculators(w io.Writer, list *calculator.CalculatorList) error {
	table := uitable.New()
	table.MaxColWidth = 60
	table.Wrap = true
	table.AddRow("ID", "NAME", "CATEGORY", "FEATURED")
	for _, c := range list.Calculators {
		table.AddRow(c.ID, c.Name, c.Category, strconv.FormatBool(c.Featured))
	}

	if _, err := fmt.Fprintln(w, table.String()); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nShowing %d of %d (page %d)\n", len(list.Calculators), list.Total, list.Page)
	return err
}
