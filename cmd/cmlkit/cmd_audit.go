package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/cmlkit/pkg/audit"
	"github.com/newtron-network/cmlkit/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View audit logs",
	Long: `View the audit trail of mutating operations.

Every mutating operation is logged with:
  - Timestamp and duration
  - User the controller session belongs to
  - Lab and node affected
  - Operation and (redacted) arguments
  - Success, or the error code on failure

Events go to the redis_addr stream when set, else to the audit_log file.

Examples:
  cmlkit audit list --lab 5f0c...
  cmlkit audit list --last 24h
  cmlkit audit list --op push_config --failures`,
}

var (
	auditLab      string
	auditOp       string
	auditUser     string
	auditLast     string
	auditLimit    int
	auditFailures bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter := audit.Filter{
			Lab:         auditLab,
			Operation:   auditOp,
			User:        auditUser,
			Limit:       auditLimit,
			FailureOnly: auditFailures,
		}

		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		logger, err := openAuditLogger(userSettings)
		if err != nil {
			return fmt.Errorf("opening audit log: %w", err)
		}
		defer logger.Close()

		events, err := logger.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}

		if jsonOutput {
			return printJSON(events)
		}

		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "USER", "LAB", "NODE", "OPERATION", "DURATION", "STATUS")
		for _, event := range events {
			status := green("ok")
			if !event.Success {
				status = red(event.ErrorCode)
			}
			t.Row(
				event.Timestamp.Format("2006-01-02 15:04:05"),
				event.User,
				shortID(event.Lab),
				shortID(event.Node),
				event.Operation,
				event.Duration.Round(time.Millisecond).String(),
				status,
			)
		}
		t.Flush()
		return nil
	},
}

// shortID trims platform UUIDs to their first block for table output.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func init() {
	auditListCmd.Flags().StringVar(&auditLab, "lab", "", "Filter by lab ID")
	auditListCmd.Flags().StringVar(&auditOp, "op", "", "Filter by operation")
	auditListCmd.Flags().StringVar(&auditUser, "user", "", "Filter by user")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")
	addOutputFlags(auditListCmd)

	auditCmd.AddCommand(auditListCmd)
}
