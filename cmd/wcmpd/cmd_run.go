package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/newtron-network/wcmpd/pkg/oidmap"
	"github.com/newtron-network/wcmpd/pkg/orch"
	"github.com/newtron-network/wcmpd/pkg/port"
	"github.com/newtron-network/wcmpd/pkg/sai"
	"github.com/newtron-network/wcmpd/pkg/settings"
	"github.com/newtron-network/wcmpd/pkg/sonic"
	"github.com/newtron-network/wcmpd/pkg/util"
	"github.com/newtron-network/wcmpd/pkg/wcmp"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the orchestrator against the switch Redis",
	Long: `Run consumes FIXED_WCMP_GROUP_TABLE entries from the P4RT table in APPL_DB,
programs next-hop groups into ASIC_DB and reacts to port_state_change
notifications. It stops on SIGINT or SIGTERM after the request in flight.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runDaemon(ctx)
	},
}

// tunnelConfig builds the SSH tunnel settings, prompting for the password
// when none is configured and stdin is a terminal.
func tunnelConfig(s *settings.Settings) (*sonic.TunnelConfig, error) {
	if s.SSH == nil {
		return nil, nil
	}
	tc := &sonic.TunnelConfig{
		Host:       s.SSH.Host,
		Port:       s.SSH.Port,
		User:       s.SSH.User,
		Password:   s.SSH.Password,
		KnownHosts: s.SSH.KnownHosts,
		Timeout:    10 * time.Second,
	}
	if tc.Password == "" && term.IsTerminal(int(os.Stdin.Fd())) {
		fmt.Fprintf(os.Stderr, "%s@%s's password: ", tc.User, tc.Host)
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return nil, fmt.Errorf("reading password: %w", err)
		}
		tc.Password = string(pw)
	}
	return tc, nil
}

func connect(ctx context.Context) (*sonic.Conn, error) {
	tc, err := tunnelConfig(cfg)
	if err != nil {
		return nil, err
	}
	return sonic.Connect(ctx, cfg.RedisAddr, tc)
}

// nextHopRegistry seeds the registry with the next hops the switch already
// programmed.
func nextHopRegistry(nextHops map[string]sai.OID) (*oidmap.Mapper, error) {
	oids := oidmap.New()
	ids := make([]string, 0, len(nextHops))
	for id := range nextHops {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := oids.SetOID(oidmap.ObjectTypeNextHop, oidmap.NextHopKey(id), nextHops[id]); err != nil {
			return nil, err
		}
	}
	return oids, nil
}

func runDaemon(ctx context.Context) error {
	conn, err := connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	asic := sonic.NewAsicDB(conn.Asic)
	asic.MaxGroups = cfg.Capacity.MaxGroups
	asic.MaxMembers = cfg.Capacity.MaxMembers
	if err := asic.Load(ctx); err != nil {
		return fmt.Errorf("indexing ASIC_DB: %w", err)
	}

	ports := port.NewTable()
	if err := sonic.LoadPorts(ctx, conn.Counters, conn.State, ports); err != nil {
		return fmt.Errorf("loading ports: %w", err)
	}
	oids, err := nextHopRegistry(cfg.NextHops)
	if err != nil {
		return err
	}
	util.WithFields(map[string]interface{}{
		"ports":     len(ports.Ports()),
		"next_hops": oids.Count(oidmap.ObjectTypeNextHop),
	}).Info("State loaded")

	mgr := wcmp.NewManager(asic, oids, ports)
	opts := []orch.Option{
		orch.WithResponseSink(orch.Publisher{
			ResponsePublisher: sonic.NewResponsePublisher(conn.Appl, conn.ApplState, cfg.Table),
		}),
	}
	if auditLogger != nil {
		opts = append(opts, orch.WithAuditLogger(auditLogger))
	}
	loop := orch.New(mgr, ports, opts...)

	consumer := sonic.NewConsumerTable(conn.Appl, cfg.Table)
	wakeups, err := consumer.Subscribe(ctx)
	if err != nil {
		return err
	}
	defer wakeups.Close()
	notes, err := sonic.SubscribeNotifications(ctx, conn.Asic)
	if err != nil {
		return err
	}
	defer notes.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error { return orch.PumpTable(gctx, consumer, wakeups.Channel(), loop) })
	g.Go(func() error { return orch.PumpNotifications(gctx, notes.Stream(gctx), loop) })

	util.WithField("table", cfg.Table).Info("Orchestrator running")
	err = g.Wait()
	if n := mgr.CriticalEvents(); n > 0 {
		util.Warnf("%d critical events were raised; ASIC_DB may not match the requested state", n)
	}
	return err
}
