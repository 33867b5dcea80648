package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"joinpounce/internal/affiliate"
	"joinpounce/internal/envutil"
	"joinpounce/internal/normalizer"
	"joinpounce/internal/pricing"
	"joinpounce/internal/retailer"
	"joinpounce/internal/similarity"
)

// newRootCmd builds the CLI. Affiliate ids and the tracking base come from
// the same env vars the services read.
func newRootCmd(getenv func(string) string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "pounce",
		Short:         "Run the price-tracking decision core from the shell",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	n := normalizer.New(normalizer.DefaultTables())

	rootCmd.AddCommand(
		newNormalizeCmd(n),
		newRetailerCmd(n),
		newAffiliateCmd(n, getenv),
		newDropCmd(getenv),
		newKeywordsCmd(),
		newTrackCmd(getenv),
	)
	return rootCmd
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			_ = cmd.Help()
			return errUsage
		}
		return nil
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newNormalizeCmd(n *normalizer.Normalizer) *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <url>",
		Short: "Print the canonical form of a product URL",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			got, err := n.Normalize(args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), got)
		},
	}
}

func newRetailerCmd(n *normalizer.Normalizer) *cobra.Command {
	return &cobra.Command{
		Use:   "retailer <url>",
		Short: "Print which supported retailer a URL belongs to",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := n.DetectRetailer(args[0])
			if r == retailer.None {
				return fmt.Errorf("unsupported retailer: %s", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func newAffiliateCmd(n *normalizer.Normalizer, getenv func(string) string) *cobra.Command {
	var name string
	c := &cobra.Command{
		Use:   "affiliate <url>",
		Short: "Normalize a URL and add our affiliate tag",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			norm, err := n.Normalize(args[0])
			if err != nil {
				return err
			}
			r := norm.Retailer
			if strings.TrimSpace(name) != "" {
				if r, err = retailer.Parse(name); err != nil {
					return err
				}
			}

			inj := affiliate.NewInjector(affiliate.DefaultTags(envutil.AffiliateIDs(getenv)))
			res := inj.Inject(norm.Canonical, r)
			fmt.Fprintln(cmd.OutOrStdout(), res.URL)
			fmt.Fprintln(cmd.ErrOrStderr(), "status:", res.Status)
			return res.Err
		},
	}
	c.Flags().StringVar(&name, "retailer", "", "Retailer to tag for (default: detected from the URL)")
	return c
}

func newDropCmd(getenv func(string) string) *cobra.Command {
	var percent, amount string
	c := &cobra.Command{
		Use:   "drop <before> <after>",
		Short: "Compute a price drop and whether it would alert",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("before: %w", err)
			}
			after, err := decimal.NewFromString(args[1])
			if err != nil {
				return fmt.Errorf("after: %w", err)
			}
			th := pricing.DefaultThresholds()
			if th.Percent, err = envutil.Decimal(getenv, "ALERTS_THRESHOLD_PERCENT", th.Percent); err != nil {
				return err
			}
			if th.Amount, err = envutil.Decimal(getenv, "ALERTS_THRESHOLD_AMOUNT", th.Amount); err != nil {
				return err
			}
			if percent != "" {
				if th.Percent, err = decimal.NewFromString(percent); err != nil {
					return fmt.Errorf("--percent: %w", err)
				}
			}
			if amount != "" {
				if th.Amount, err = decimal.NewFromString(amount); err != nil {
					return fmt.Errorf("--amount: %w", err)
				}
			}
			if err := th.Validate(); err != nil {
				return err
			}

			d, err := pricing.ComputeDrop(before, after)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "drop: $%s (%s%%)\n", d.Amount.StringFixed(2), d.Percent.StringFixed(2))
			fmt.Fprintf(out, "significant: %t\n", d.MeetsThresholds(th))
			return nil
		},
	}
	c.Flags().StringVar(&percent, "percent", "", "Minimum percent drop (default ALERTS_THRESHOLD_PERCENT or 10)")
	c.Flags().StringVar(&amount, "amount", "", "Minimum dollar drop (default ALERTS_THRESHOLD_AMOUNT or 10)")
	return c
}

func newKeywordsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keywords <product name>",
		Short: "Print the search keywords for a product name",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kw := range similarity.ExtractKeywords(strings.Join(args, " ")) {
				fmt.Fprintln(cmd.OutOrStdout(), kw)
			}
			return nil
		},
	}
}

func newTrackCmd(getenv func(string) string) *cobra.Command {
	var base string
	c := &cobra.Command{
		Use:   "track <notification-id> <affiliate-url>",
		Short: "Build the click-tracking link for a notification",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if base == "" {
				base = envutil.String(getenv, "APP_URL", affiliate.DefaultTrackingBase)
			}
			fmt.Fprintln(cmd.OutOrStdout(), affiliate.NewTracker(base).BuildTrackingURL(args[0], args[1]))
			return nil
		},
	}
	c.Flags().StringVar(&base, "base", "", "Tracking host (default: APP_URL)")
	return c
}
