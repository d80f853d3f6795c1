package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/newtron-network/wcmpd/pkg/cli"
	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/sonic"
)

var showPorts bool

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List next-hop groups programmed in ASIC_DB",
	Long: `Show reads every next-hop group and member object straight from ASIC_DB.
With --ports it lists the port table and oper status instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		conn, err := connect(ctx)
		if err != nil {
			return err
		}
		defer conn.Close()

		if showPorts {
			tbl := port.NewTable()
			if err := sonic.LoadPorts(ctx, conn.Counters, conn.State, tbl); err != nil {
				return err
			}
			return printPorts(tbl.Ports())
		}

		groups, err := sonic.NewAsicDB(conn.Asic).ListGroups(ctx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return json.NewEncoder(os.Stdout).Encode(groups)
		}
		if len(groups) == 0 {
			fmt.Println("No next-hop groups")
			return nil
		}
		t := cli.NewTable("GROUP OID", "TYPE", "MEMBER OID", "NEXT HOP", "WEIGHT")
		for _, g := range groups {
			if len(g.Members) == 0 {
				t.Row(g.OID.String(), g.Type, "-", "-", "-")
			}
			for _, m := range g.Members {
				t.Row(g.OID.String(), g.Type, m.OID.String(), m.NextHop.String(), strconv.FormatUint(uint64(m.Weight), 10))
			}
		}
		t.Flush()
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showPorts, "ports", false, "List ports and their oper status")
}

func printPorts(ports []port.Port) error {
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(ports)
	}
	t := cli.NewTable("PORT", "OID", "OPER")
	for _, p := range ports {
		t.Row(p.Name, p.OID.String(), string(p.Oper))
	}
	t.Flush()
	return nil
}
