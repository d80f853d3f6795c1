package sonic

import (
	"context"
	"fmt"
	"sort"

	"github.com/go-redis/redis/v8"

	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/util"
)

// COUNTERS_DB and STATE_DB names of the port data.
const (
	portNameMap    = "COUNTERS_PORT_NAME_MAP"
	statePortTable = "PORT_TABLE"

	fieldOperStatus       = "oper_status"
	fieldNetdevOperStatus = "netdev_oper_status"
)

// LoadPorts fills tbl with every port in COUNTERS_PORT_NAME_MAP and its
// oper status from STATE_DB. Ports without a state entry are added as
// unknown.
func LoadPorts(ctx context.Context, counters, state *redis.Client, tbl *port.Table) error {
	names, err := counters.HGetAll(ctx, portNameMap).Result()
	if err != nil {
		return fmt.Errorf("reading %s: %w", portNameMap, err)
	}

	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	p := state.Pipeline()
	cmds := make(map[string]*redis.StringStringMapCmd, len(sorted))
	for _, name := range sorted {
		cmds[name] = p.HGetAll(ctx, statePortTable+bar+name)
	}
	if _, err := p.Exec(ctx); err != nil && err != redis.Nil {
		return fmt.Errorf("reading %s: %w", statePortTable, err)
	}

	for _, name := range sorted {
		oid, err := sai.ParseOID(names[name])
		if err != nil {
			util.WithPort(name).Warnf("skipping port: %v", err)
			continue
		}
		fields, _ := cmds[name].Result()
		st := fields[fieldOperStatus]
		if st == "" {
			st = fields[fieldNetdevOperStatus]
		}
		if err := tbl.Add(name, oid, port.ParseOperStatus(st)); err != nil {
			return err
		}
	}
	util.Infof("loaded %d ports", len(sorted))
	return nil
}
