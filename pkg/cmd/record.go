package cmd

import (
	"github.com/spf13/cobra"
)

var (
	configPath   string
	attachPid    int
	statusListen string
)

var recordCmd = &cobra.Command{
	Use:   "record [flags] [-- command [args...]]",
	Short: "Trace a command or a running process into a trace directory",
	Long: `Trace a new command, or attach to a running process with --pid, and
record its syscalls, signals and memory maps. Each run writes to a fresh
directory under trace.dir (or --data-dir) named after the session id.
Send SIGHUP, or run "coretrace reload-config", to reload the config file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := initLogger()
		defer syncLogger(logger)

		return runRecordCmd(cmd, args, logger)
	},
}

func init() {
	recordCmd.Flags().StringVar(&configPath, "config",
		getEnvOr("CORETRACE_CONFIG", ""),
		"Configuration file path")
	recordCmd.Flags().IntVar(&attachPid, "pid",
		getEnvIntOr("CORETRACE_PID", 0),
		"Attach to a running process instead of launching a command")
	recordCmd.Flags().StringVar(&statusListen, "status-listen",
		getEnvOr("STATUS_LISTEN", ""),
		"IP:PORT of status server to listen on (overrides status.listen)")
}
