package commands

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/calcsite/calculator-sdk-go/calculator"
)

// CalculateOptions holds options for the calculate command
type CalculateOptions struct {
	Format    string
	Precision int
	Currency  string
	Locale    string
}

// NewCalculateCommand creates the calculate command
func NewCalculateCommand(global *GlobalOptions) *cobra.Command {
	opts := &CalculateOptions{}

	cmd := &cobra.Command{
		Use:   "calculate <calculator-id> [name=value ...]",
		Short: "Run a calculation",
		Long: `Runs a calculation with the given inputs. Values that parse as numbers
or booleans are sent as such; everything else is sent as a string.`,
		Example: `  calculator calculate mortgage principal=300000 rate=3.5 term=30
  calculator calculate percentage value=80 percent=15 --format detailed`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			inputs, err := parseInputs(args[1:])
			if err != nil {
				return err
			}
			return runCalculate(cmd, global, calculator.CalculationInput{
				CalculatorID: args[0],
				Inputs:       inputs,
				Format:       opts.Format,
				Precision:    opts.Precision,
				Currency:     opts.Currency,
				Locale:       opts.Locale,
			})
		},
	}

	cmd.Flags().StringVarP(&opts.Format, "format", "f", "", "Output format: simple, detailed or breakdown")
	cmd.Flags().IntVarP(&opts.Precision, "precision", "p", 0, "Decimal places")
	cmd.Flags().StringVar(&opts.Currency, "currency", "", "ISO 4217 currency code")
	cmd.Flags().StringVar(&opts.Locale, "locale", "", "BCP 47 locale")

	return cmd
}

// parseInputs turns name=value arguments into calculation inputs.
func parseInputs(args []string) (map[string]any, error) {
	inputs := make(map[string]any, len(args))
	for _, arg := range args {
		name, value, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid input %q: expected name=value", arg)
		}
		inputs[name] = parseValue(value)
	}
	return inputs, nil
}

func parseValue(s string) any {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func runCalculate(cmd *cobra.Command, global *GlobalOptions, input calculator.CalculationInput) error {
	client, cleanup, err := global.newClient(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	out := cmd.OutOrStdout()
	if global.JSON {
		raw, err := client.CalculateRaw(cmd.Context(), input)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(raw))
		return err
	}

	res, err := client.Calculate(cmd.Context(), input)
	if err != nil {
		return err
	}
	return printResult(out, res)
}

func printResult(w io.Writer, res *calculator.CalculationResult) error {
	table := uitable.New()
	table.RightAlign(0)
	table.Separator = " "
	table.AddRow("result:", res.Result)
	if res.Formatted != nil {
		table.AddRow("formatted:", res.Formatted)
	}
	for _, item := range res.Breakdown {
		table.AddRow("breakdown:", item)
	}
	table.AddRow("precision:", res.Metadata.Precision)
	table.AddRow("currency:", res.Metadata.Currency)
	table.AddRow("locale:", res.Metadata.Locale)
	table.AddRow("cached:", res.Metadata.Cached)

	_, err := fmt.Fprintln(w, table.String())
	return err
}
