package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/mtfscan/backend/internal/contracts"
)

// planCmd represents the plan command
var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage subscriber plans",
	Long: `Administrative operations on subscriber plans.

Subcommands:
  activate - activate a paid plan for a subscriber
  extend   - extend an active plan by N days
  expire   - downgrade every lapsed plan now
  status   - show a subscriber's plan and referral standing

Example:
  go run ./cmd/mtfscan plan activate 123456789 premium
  go run ./cmd/mtfscan plan extend 123456789 30
  go run ./cmd/mtfscan plan status 123456789`,
}

var (
	planActivateCmd = &cobra.Command{
		Use:   "activate [subscriber_id] [tier]",
		Short: "Activate a paid plan",
		Args:  cobra.ExactArgs(2),
		RunE:  activatePlan,
	}

	planExtendCmd = &cobra.Command{
		Use:   "extend [subscriber_id] [days]",
		Short: "Extend an active plan",
		Args:  cobra.ExactArgs(2),
		RunE:  extendPlan,
	}

	planExpireCmd = &cobra.Command{
		Use:   "expire",
		Short: "Downgrade lapsed plans",
		RunE:  expirePlans,
	}

	planStatusCmd = &cobra.Command{
		Use:   "status [subscriber_id]",
		Short: "Show plan and referral standing",
		Args:  cobra.ExactArgs(1),
		RunE:  showPlanStatus,
	}
)

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.AddCommand(planActivateCmd)
	planCmd.AddCommand(planExtendCmd)
	planCmd.AddCommand(planExpireCmd)
	planCmd.AddCommand(planStatusCmd)
}

func parseSubscriberID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid subscriber id %q", arg)
	}
	return id, nil
}

func activatePlan(cmd *cobra.Command, args []string) error {
	id, err := parseSubscriberID(args[0])
	if err != nil {
		return err
	}

	tier := contracts.Tier(strings.ToLower(args[1]))
	if !tier.Paid() {
		return fmt.Errorf("tier must be plus or premium, got %q", args[1])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.subs.Activate(cmd.Context(), id, tier); err != nil {
		return fmt.Errorf("activate: %w", err)
	}

	fmt.Printf("✅ Activated %s plan for %d\n", tier, id)
	return nil
}

func extendPlan(cmd *cobra.Command, args []string) error {
	id, err := parseSubscriberID(args[0])
	if err != nil {
		return err
	}

	days, err := strconv.Atoi(args[1])
	if err != nil || days <= 0 {
		return fmt.Errorf("days must be a positive integer, got %q", args[1])
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.subs.ExtendCurrent(cmd.Context(), id, days); err != nil {
		return fmt.Errorf("extend: %w", err)
	}

	fmt.Printf("✅ Extended plan for %d by %d days\n", id, days)
	return nil
}

func expirePlans(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	total := 0
	for {
		n, err := a.subs.ExpireDue(cmd.Context(), a.cfg.Maintenance.BatchSize)
		if err != nil {
			return fmt.Errorf("expire: %w", err)
		}
		total += n
		if n < a.cfg.Maintenance.BatchSize {
			break
		}
	}

	fmt.Printf("✅ Downgraded %d lapsed plans\n", total)
	return nil
}

func showPlanStatus(cmd *cobra.Command, args []string) error {
	id, err := parseSubscriberID(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sub, status, err := a.subs.Status(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}

	fmt.Printf("Subscriber %d (@%s)\n", sub.ID, sub.Username)
	fmt.Printf("  Tier:  %s\n", status.Tier)
	fmt.Printf("  State: %s\n", status.State)
	if status.Expires != nil {
		fmt.Printf("  Until: %s\n", status.Expires.Format("2006-01-02 15:04"))
	}

	refStats, err := a.subs.Stats(cmd.Context(), id)
	if err != nil {
		return fmt.Errorf("referral stats: %w", err)
	}

	fmt.Printf("\nReferrals (code %s)\n", refStats.RefCode)
	fmt.Printf("  Invited: %d (premium %d, plus %d)\n",
		refStats.TotalInvited, refStats.InvitedPremium, refStats.InvitedPlus)
	fmt.Printf("  Credits: premium %d/%d, plus %d/%d (valid/total)\n",
		refStats.PremiumValid, refStats.PremiumTotal, refStats.PlusValid, refStats.PlusTotal)
	for _, reward := range refStats.NextRewards {
		action := "extend current plan"
		if !reward.Extend {
			action = "grant " + string(reward.GrantTier)
		}
		fmt.Printf("  Next: %d/%d %s referrals to %s\n",
			reward.Have, reward.Need, reward.CreditTier, action)
	}

	return nil
}
