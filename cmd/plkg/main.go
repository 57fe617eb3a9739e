// Command plkg runs one endpoint of the physical-layer key generation
// pipeline against a real radio attached over serial: it collects CSI,
// quantizes a raw key, reconciles it against the peer over Cascade,
// amplifies the result, and proves it with a Secure Channel Test.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/barnettlynn/plkg/internal/config"
	"github.com/barnettlynn/plkg/internal/persist"
	"github.com/barnettlynn/plkg/internal/plkgerr"
	"github.com/barnettlynn/plkg/internal/pubchannel"
	"github.com/barnettlynn/plkg/internal/serial"
	"github.com/barnettlynn/plkg/internal/session"
)

// Exit codes (spec §6).
const (
	exitOK             = 0
	exitFatalSetup     = 1
	exitNonConvergence = 2
	exitInterrupted    = 130
)

func main() {
	var (
		configPath = pflag.StringP("config", "c", "", "path to YAML config file (defaults built in if omitted)")
		role       = pflag.StringP("role", "r", "", "endpoint role: alice, bob, or eve (required)")
		port       = pflag.String("port", "", "override serial port")
		baud       = pflag.Int("baud", 0, "override serial baud rate")
		peerMAC    = pflag.String("peer-mac", "", "override the peer's radio MAC")
		localMAC   = pflag.String("local-mac", "", "override this endpoint's radio MAC")
		stateLog   = pflag.String("state-log", "", "override the CSV path recording every serial line")
		timeout    = pflag.Duration("timeout", 2*time.Minute, "overall session deadline")
		verbose    = pflag.BoolP("verbose", "v", false, "enable debug logging")
		logFormat  = pflag.String("log-format", "text", "log format: text or json")
	)
	pflag.Parse()

	logger := newLogger(*verbose, *logFormat)

	if *role == "" {
		if picked, ok := chooseRole(); ok {
			*role = picked
		}
	}
	role2, err := parseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		pflag.Usage()
		os.Exit(exitFatalSetup)
	}

	var cfg config.Config
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config load failed", "error", err)
			os.Exit(exitFatalSetup)
		}
		cfg = *loaded
	} else {
		cfg = config.Default()
	}
	applyOverrides(&cfg, *port, *baud, *peerMAC, *localMAC, *stateLog)
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(exitFatalSetup)
	}

	radio, err := serial.Open(cfg.Serial.Port, cfg.Serial.Baud)
	if err != nil {
		logger.Error("serial open failed", "error", err)
		os.Exit(exitFatalSetup)
	}
	defer radio.Close()

	var writer *persist.Writer
	if cfg.StateLog.Path != "" {
		writer, err = persist.Open(cfg.StateLog.Path)
		if err != nil {
			logger.Error("state log open failed", "error", err)
			os.Exit(exitFatalSetup)
		}
		defer writer.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	out := session.RadioPublisher{Radio: radio, PeerMAC: cfg.Radio.PeerMAC}
	inbox := pubchannel.NewInbox()

	orc := session.New(role2, cfg, cfg.Radio.PeerMAC, radio, out, inbox, writer, logger)
	res := orc.Run(ctx)

	report(logger, res)

	switch {
	case ctx.Err() == context.Canceled:
		os.Exit(exitInterrupted)
	case plkgerr.Is(res.Err, plkgerr.KindSerialUnavailable):
		os.Exit(exitFatalSetup)
	case res.Err != nil:
		os.Exit(exitNonConvergence)
	case role2 != session.RoleAlice && !res.SecureOutcome.Success:
		// Bob/eve's secure channel test reports failure with a nil error
		// by design (spec §7); a non-converged key must still fail loudly.
		os.Exit(exitNonConvergence)
	default:
		os.Exit(exitOK)
	}
}

func parseRole(s string) (session.Role, error) {
	switch session.Role(s) {
	case session.RoleAlice, session.RoleBob, session.RoleEve:
		return session.Role(s), nil
	default:
		return "", fmt.Errorf("plkg: -role must be one of alice, bob, eve (got %q)", s)
	}
}

func applyOverrides(cfg *config.Config, port string, baud int, peerMAC, localMAC, stateLog string) {
	if port != "" {
		cfg.Serial.Port = port
	}
	if baud != 0 {
		cfg.Serial.Baud = baud
	}
	if peerMAC != "" {
		cfg.Radio.PeerMAC = peerMAC
	}
	if localMAC != "" {
		cfg.Radio.LocalMAC = localMAC
	}
	if stateLog != "" {
		cfg.StateLog.Path = stateLog
	}
}

func newLogger(verbose bool, format string) *log.Logger {
	opts := log.Options{ReportTimestamp: true}
	if format == "json" {
		opts.Formatter = log.JSONFormatter
	}
	logger := log.NewWithOptions(os.Stderr, opts)
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func report(logger *log.Logger, res session.Result) {
	logger.Info("session finished",
		"final_state", res.FinalState,
		"corrections", res.Corrections.TotalCorrections,
		"secure_test_ok", res.SecureOutcome.Success,
		"error", res.Err,
	)
	if res.Err == nil {
		fmt.Printf("final key: %x\n", res.FinalKey)
	}
}
