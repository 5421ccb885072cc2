/**
 * @description
 * Ledger inspection commands for confito-admin: balance drift reconciliation and per-user transaction listing.
 */
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/TheSkyfred/confito-57d2c83e-sub002/internal/domain"
)

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Compare cached balances with ledger sums and report drift",
		Long: `Reconcile reports every profile whose cached credit balance differs from
the sum of its ledger rows. Drift is reported only; balances are not changed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			asJSON, _ := cmd.Flags().GetBool("json")

			env, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			report, err := env.service.ReconcileLedger(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return printReport(cmd.OutOrStdout(), report, asJSON)
		},
	}

	cmd.Flags().IntP("limit", "n", 500, "Maximum drifted profiles to report")
	cmd.Flags().BoolP("json", "j", false, "Output as JSON")

	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger USER_ID",
		Short: "Show a user's balance and most recent credit transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			env, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			balance, err := env.service.GetBalance(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			transactions, err := env.service.ListTransactions(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			return printLedger(cmd.OutOrStdout(), balance, transactions)
		},
	}

	cmd.Flags().IntP("limit", "n", 20, "Maximum transactions to show")

	return cmd
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage credit profiles",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "create USER_ID",
		Short: "Create a zero-balance profile (local stores only need this)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd)
			if err != nil {
				return err
			}
			defer env.Close()

			created, err := env.repo.CreateProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "profile %s created\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "profile %s already exists\n", args[0])
			}
			return nil
		},
	})

	return cmd
}

func printReport(out io.Writer, report *domain.ReconciliationReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "Checked at %s\n", report.CheckedAt.Format(time.RFC3339))
	if len(report.Drifts) == 0 {
		fmt.Fprintln(out, "No drift: every cached balance matches its ledger.")
		return nil
	}

	fmt.Fprintf(out, "%d profile(s) drifted\n\n", len(report.Drifts))
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USER\tCACHED\tLEDGER\tDELTA")
	for _, d := range report.Drifts {
		fmt.Fprintf(w, "%s\t%d\t%d\t%+d\n", d.UserID, d.CachedCredits, d.LedgerCredits, d.CachedCredits-d.LedgerCredits)
	}
	return w.Flush()
}

func printLedger(out io.Writer, balance *domain.ProfileBalance, transactions []domain.CreditTransaction) error {
	fmt.Fprintf(out, "User %s: %d credits\n\n", balance.UserID, balance.Credits)
	if len(transactions) == 0 {
		fmt.Fprintln(out, "No transactions.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tAMOUNT\tDESCRIPTION\tSESSION")
	for _, txn := range transactions {
		session := "-"
		if txn.ProviderSessionID != nil {
			session = *txn.ProviderSessionID
		}
		fmt.Fprintf(w, "%s\t%+d\t%s\t%s\n", txn.CreatedAt.Format(time.RFC3339), txn.Amount, txn.Description, session)
	}
	return w.Flush()
}
