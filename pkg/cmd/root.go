package cmd

import (
	"os"
	"strconv"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coretrace/coretrace/pkg/buildinfo"
)

var (
	// Global flags
	dataDir     string
	logLevel    string
	logEncoding string
	logCaller   bool

	// traceFs is where traces are read from and cores written to
	traceFs afero.Fs = afero.NewOsFs()

	rootCmd = &cobra.Command{
		Use:           "coretrace",
		Short:         "Record a process's syscalls and signals and rebuild core files from the trace",
		Version:       buildinfo.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := parseLevel(logLevel)
			return err
		},
	}
)

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", getEnvOr("LOG_LEVEL", "info"),
		"Log level (debug, info, warn, error)")
	flags.StringVar(&logEncoding, "log-encoding", getEnvOr("LOG_ENCODING", defaultLogEncoding()),
		"Log encoding (console, json)")
	flags.BoolVar(&logCaller, "log-caller", getEnvBoolOr("LOG_CALLER", false),
		"Log caller")
	flags.StringVar(&dataDir, "data-dir", getEnvOr("DATA_DIR", ""),
		"Directory traces are recorded under (overrides trace.dir)")

	rootCmd.AddCommand(recordCmd, listCmd, inspectCmd, dumpCmd, reloadConfigCmd)
}

// defaultLogEncoding picks console output for terminals and JSON otherwise.
func defaultLogEncoding() string {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return "console"
	}
	return "json"
}

func getEnvOr(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

// getEnvBoolOr accepts anything strconv.ParseBool does.
func getEnvBoolOr(key string, defaultValue bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return b
	}
	return defaultValue
}

func getEnvIntOr(key string, defaultValue int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return defaultValue
}
