package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const binaryName = "coretrace"

var reloadConfigCmd = &cobra.Command{
	Use:   "reload-config",
	Short: "Live reload the configuration of a running recorder",
	Long: `Re-read the configuration file of a running "coretrace record" without
restarting it. The syscall filter and the signal whitelist take effect
immediately.
Example usage:
  coretrace reload-config`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := initLogger()
		defer syncLogger(logger)

		return runReloadCmd(logger, afero.NewOsFs(), "/proc", syscall.Kill)
	},
}

func runReloadCmd(logger *zap.Logger, fs afero.Fs, procRoot string, kill func(int, syscall.Signal) error) error {
	pid, err := findRecorder(fs, procRoot, os.Getpid())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return errors.New("could not find a running coretrace recorder")
		}
		return fmt.Errorf("finding running recorder: %w", err)
	}

	logger.Info("sending SIGHUP signal to process", zap.Int("pid", pid))
	if err := kill(pid, syscall.SIGHUP); err != nil {
		return fmt.Errorf("signalling %d: %w", pid, err)
	}
	return nil
}

// findRecorder returns the pid of a process running "coretrace record".
func findRecorder(fs afero.Fs, procRoot string, self int) (int, error) {
	procs, err := afero.ReadDir(fs, procRoot)
	if err != nil {
		return 0, err
	}
	for _, proc := range procs {
		pid, err := strconv.Atoi(proc.Name())
		if err != nil || pid == self {
			continue
		}
		cmdline, err := afero.ReadFile(fs, procRoot+"/"+proc.Name()+"/cmdline")
		if err != nil {
			continue
		}
		argv := strings.Split(strings.TrimRight(string(cmdline), "\x00"), "\x00")
		if len(argv) < 2 || !strings.HasSuffix(argv[0], binaryName) {
			continue
		}
		for _, a := range argv[1:] {
			if a == "record" {
				return pid, nil
			}
			if !strings.HasPrefix(a, "-") {
				break
			}
		}
	}
	return 0, os.ErrNotExist
}
