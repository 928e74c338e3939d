// Command panic-attack is a multi-language source auditing and
// robustness-testing toolchain: static weak-point analysis, resource
// attacks along six axes, and logic-based bug signature inference.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hyperpolymath/panic-attacker/internal/assail"
	"github.com/hyperpolymath/panic-attacker/internal/config"
	"github.com/hyperpolymath/panic-attacker/internal/logging"
)

// Exit codes: 0 success or pass verdict, 1 fail verdict or regression,
// 2 usage or input errors, >=3 internal faults.
const (
	exitOK       = 0
	exitFail     = 1
	exitUsage    = 2
	exitInternal = 3
)

// errVerdictFail marks a run whose verdict gates the exit code.
var errVerdictFail = errors.New("verdict: fail")

var (
	verbose    bool
	configPath string
	logger     *zap.Logger
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "panic-attack",
	Short: "Universal stress testing and logic-based bug signature detection",
	Long: `panic-attack audits source trees across many language families,
stresses target binaries along six resource axes, and infers bug
signatures from observed crashes using a relational rule engine.

Typical flow: assail (static scan), attack or assault (dynamic run),
analyze (crash inference), adjudicate (campaign verdict).`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(verbose)
		if err != nil {
			return err
		}
		cfg, err = config.LoadOrDefault(configPath)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file")
}

// signalContext cancels on SIGINT/SIGTERM; analysis stops at file
// boundaries and attacks kill their process groups.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(signals)
	}()
	return ctx, cancel
}

func parseDurationFlag(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	return d, nil
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}
	fmt.Fprintf(os.Stderr, "panic-attack: %v\n", err)
	switch {
	case errors.Is(err, errVerdictFail):
		os.Exit(exitFail)
	case errors.Is(err, assail.ErrTargetNotFound), isUsageError(err):
		os.Exit(exitUsage)
	default:
		os.Exit(exitInternal)
	}
}

func isUsageError(err error) bool {
	var usage *usageError
	return errors.As(err, &usage)
}

// usageError wraps operator mistakes so they exit with code 2.
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}
