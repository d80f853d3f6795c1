// wcmpd - weighted multipath next-hop group orchestrator for SONiC
//
// wcmpd consumes FIXED_WCMP_GROUP_TABLE entries from the P4RT table in
// APPL_DB, programs next-hop groups and their weighted members into ASIC_DB,
// and prunes members whose watch port goes down until the port comes back.
//
// Commands:
//
//	wcmpd run                      # run the orchestrator against the switch Redis
//	wcmpd simulate -f steps.yaml   # replay a scenario against an in-memory device
//	wcmpd show                     # list next-hop groups programmed in ASIC_DB
//	wcmpd audit list --failures    # query the audit log
//	wcmpd version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/newtron-network/wcmpd/pkg/audit"
	"github.com/newtron-network/wcmpd/pkg/settings"
	"github.com/newtron-network/wcmpd/pkg/util"
	"github.com/newtron-network/wcmpd/pkg/version"
)

var (
	configPath string
	verbose    bool
	jsonOutput bool

	cfg         *settings.Settings
	auditLogger *audit.FileLogger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "wcmpd",
	Short:             "WCMP next-hop group orchestrator",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		path := configPath
		if path == "" {
			path = settings.DefaultPath()
		}
		var err error
		cfg, err = settings.LoadFrom(path)
		if err != nil {
			return fmt.Errorf("loading settings: %w", err)
		}
		if err := setupLogging(cfg.Log); err != nil {
			return err
		}

		if cfg.Audit.Path != "" {
			auditLogger, err = audit.NewFileLogger(cfg.Audit.Path, audit.RotationMB(cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups))
			if err != nil {
				util.Warnf("Could not initialize audit logging: %v", err)
			} else {
				audit.SetDefaultLogger(auditLogger)
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if auditLogger != nil {
			auditLogger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (default /etc/wcmpd/wcmpd.yaml or ~/.wcmpd/wcmpd.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	for _, cmd := range []*cobra.Command{simulateCmd, showCmd, auditListCmd} {
		cmd.Flags().BoolVar(&jsonOutput, "json", false, "JSON output")
	}

	rootCmd.AddCommand(runCmd, simulateCmd, showCmd, auditCmd, versionCmd)
}

// setupLogging applies the log settings. "auto" logs JSON unless stderr is
// a terminal.
func setupLogging(l settings.Log) error {
	level := l.Level
	if verbose {
		level = "debug"
	}
	format := l.Format
	if format == "auto" {
		format = util.FormatText
		if !term.IsTerminal(int(os.Stderr.Fd())) {
			format = util.FormatJSON
		}
	}
	if err := util.Configure(level, format); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if version.Version == "dev" {
			fmt.Println("wcmpd dev build (version not set via ldflags)")
			return
		}
		fmt.Println("wcmpd " + version.Info())
	},
}
