package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newtron-network/wcmpd/pkg/cli"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/scenario"
	"github.com/newtron-network/wcmpd/pkg/wcmp"
)

var (
	scenarioFile string
	showCalls    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a scenario against an in-memory device",
	Long: `Simulate replays the steps of a scenario file (group SETs and DELs, port
state changes, scripted device failures) through the orchestrator against an
in-memory device, then prints the outcome of every step and the final group
table. It exits non-zero when a step misses its expected response code.

Example:
  wcmpd simulate -f pkg/scenario/testdata/prune_restore.yaml --calls`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := scenario.Load(scenarioFile)
		if err != nil {
			return err
		}
		runner, err := scenario.NewRunner(s)
		if err != nil {
			return err
		}
		res := runner.Run(cmd.Context())

		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return err
			}
		} else {
			printReplay(s, res)
		}
		if res.Failed > 0 {
			return fmt.Errorf("%d of %d steps failed", res.Failed, len(res.Steps))
		}
		return nil
	},
}

func init() {
	simulateCmd.Flags().StringVarP(&scenarioFile, "file", "f", "", "Scenario file")
	simulateCmd.Flags().BoolVar(&showCalls, "calls", false, "Print the device calls of every step")
	simulateCmd.MarkFlagRequired("file")
}

func printReplay(s *scenario.Scenario, res *scenario.Result) {
	if s.Name != "" {
		fmt.Println(cli.Bold(s.Name))
		fmt.Println()
	}
	for _, st := range res.Steps {
		label := cli.DotPad(fmt.Sprintf("%2d %s %s", st.Index, st.Kind, st.Target), 40)
		line := label + " " + cli.Status(string(st.Code), st.Code.OK())
		if st.Criticals > 0 {
			line += " " + cli.Red(fmt.Sprintf("(%d critical)", st.Criticals))
		}
		if !st.Passed() {
			line += " " + cli.Yellow(st.Mismatch)
		}
		fmt.Println(line)
		if showCalls {
			for _, c := range st.Calls {
				fmt.Println("     " + cli.Dim(formatCall(c)))
			}
		}
	}

	fmt.Println()
	printGroups(res.Groups)
	fmt.Printf("\nDevice: %d groups, %d members\n", res.Devices.Groups, res.Devices.Members)
}

func formatCall(c sai.Call) string {
	var b strings.Builder
	b.WriteString(string(c.Op))
	switch c.Op {
	case sai.OpCreateMember, sai.OpRemoveMember:
		fmt.Fprintf(&b, " group=%s nexthop=%s weight=%d", c.Group, c.NextHop, c.Weight)
	}
	if !c.OID.IsNull() {
		b.WriteString(" -> " + c.OID.String())
	}
	if c.Status != sai.StatusSuccess {
		b.WriteString(" " + c.Status.String())
	}
	return b.String()
}

// printGroups prints the orchestrator's view of every group.
func printGroups(groups []wcmp.GroupInfo) {
	if len(groups) == 0 {
		fmt.Println("No groups")
		return
	}
	t := cli.NewTable("GROUP", "OID", "POS", "NEXT HOP", "WEIGHT", "WATCH PORT", "MEMBER")
	for _, g := range groups {
		if len(g.Members) == 0 {
			t.Row(g.ID, g.OID.String(), "-", "-", "-", "-", "-")
		}
		for _, m := range g.Members {
			member := m.OID.String()
			if m.Pruned {
				member = "pruned"
			}
			watch := m.WatchPort
			if watch == "" {
				watch = "-"
			}
			t.Row(g.ID, g.OID.String(), strconv.Itoa(m.Position), m.NextHopID, strconv.Itoa(m.Weight), watch, member)
		}
	}
	t.Flush()
}
