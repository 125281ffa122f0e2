//go:build !linux

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func runRecordCmd(_ *cobra.Command, _ []string, logger *zap.Logger) error {
	logger.Warn("'record' relies on ptrace and can only run on Linux.")
	return errors.New("record is not supported on this platform")
}
