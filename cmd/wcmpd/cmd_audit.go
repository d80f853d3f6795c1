package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/newtron-network/wcmpd/pkg/audit"
	"github.com/newtron-network/wcmpd/pkg/cli"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "View the audit log",
	Long: `View the audit log of group requests and port transitions.

Every request (add, update, delete) and every watch-port transition
(prune, restore) is logged with its response code and whether it left
ASIC_DB diverged from the requested state.

Examples:
  wcmpd audit list --group group-1
  wcmpd audit list --last 24h --failures
  wcmpd audit list --critical`,
}

var (
	auditGroup    string
	auditPort     string
	auditLast     string
	auditLimit    int
	auditFailures bool
	auditCritical bool
)

var auditListCmd = &cobra.Command{
	Use:   "list",
	Short: "List audit events",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Audit.Path == "" {
			return fmt.Errorf("audit.path is not configured")
		}
		filter := audit.Filter{
			Group:        auditGroup,
			Port:         auditPort,
			Limit:        auditLimit,
			FailureOnly:  auditFailures,
			CriticalOnly: auditCritical,
		}
		if auditLast != "" {
			duration, err := time.ParseDuration(auditLast)
			if err != nil {
				return fmt.Errorf("invalid duration: %s", auditLast)
			}
			filter.StartTime = time.Now().Add(-duration)
		}

		events, err := audit.Query(filter)
		if err != nil {
			return fmt.Errorf("querying audit log: %w", err)
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(events)
		}
		if len(events) == 0 {
			fmt.Println("No audit events found")
			return nil
		}

		t := cli.NewTable("TIMESTAMP", "OPERATION", "GROUP", "PORT", "CODE", "STATUS")
		for _, ev := range events {
			status := "ok"
			switch {
			case ev.Critical:
				status = "CRITICAL"
			case !ev.Success:
				status = "failed"
			}
			t.Row(
				ev.Timestamp.Format("2006-01-02 15:04:05"),
				string(ev.Operation),
				orDash(ev.Group),
				orDash(ev.Port),
				ev.Code,
				status,
			)
		}
		t.Flush()
		return nil
	},
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	auditListCmd.Flags().StringVar(&auditGroup, "group", "", "Filter by group id")
	auditListCmd.Flags().StringVar(&auditPort, "port", "", "Filter by port")
	auditListCmd.Flags().StringVar(&auditLast, "last", "", "Show events from last duration (e.g., 24h)")
	auditListCmd.Flags().IntVar(&auditLimit, "limit", 100, "Maximum events to show")
	auditListCmd.Flags().BoolVar(&auditFailures, "failures", false, "Show only failed operations")
	auditListCmd.Flags().BoolVar(&auditCritical, "critical", false, "Show only operations that raised critical events")

	auditCmd.AddCommand(auditListCmd)
}
