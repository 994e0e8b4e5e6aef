// Package verify replays a settled rumble against the ledger and reports
// whether the independent simulation agrees.
package verify

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/ichorlabs/rumble/internal/arena/ledger"
	entrypoint "github.com/ichorlabs/rumble/internal/platform/cmd"
	"github.com/ichorlabs/rumble/internal/verifier"
)

// Config holds verify command configuration.
type Config struct {
	LedgerURL string `env:"ICHOR_ARENA_LEDGER_URL"`
	RumbleID  uint64
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.LedgerURL, "ledger", cfg.LedgerURL, "Base URL of the settlement ledger API")
	fs.Uint64Var(&cfg.RumbleID, "rumble", 0, "ID of the rumble to verify")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.LedgerURL == "" {
		return Config{}, errors.New("a ledger URL is required (-ledger or ICHOR_ARENA_LEDGER_URL)")
	}
	if cfg.RumbleID == 0 {
		return Config{}, errors.New("a rumble ID is required (-rumble)")
	}
	return cfg, nil
}

// ErrMismatch is returned when the replay disagrees with the ledger, so the
// command exits non-zero.
var ErrMismatch = errors.New("replay disagrees with the ledger")

// Run verifies one rumble and renders the report to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceVerify, func(ctx context.Context) error {
		client := ledger.NewHTTPClient(cfg.LedgerURL)
		report, err := verifier.Run(ctx, client, cfg.RumbleID)
		if err != nil {
			return fmt.Errorf("verify rumble %d: %w", cfg.RumbleID, err)
		}

		rendered, err := RenderReport(report)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		if _, err := io.WriteString(out, rendered); err != nil {
			return err
		}
		if !report.OK() {
			return ErrMismatch
		}
		return nil
	})
}

// RenderReport formats a verification report for the terminal.
func RenderReport(report verifier.Report) (string, error) {
	summary := fmt.Sprintf("rumble %d: %d fighters over %d turns",
		report.RumbleID, report.Fighters, report.Turns)

	if report.OK() {
		return pterm.Success.Sprintfln("%s: replay matches the ledger", summary), nil
	}

	data := pterm.TableData{{"Fighter", "Field", "Replayed", "Ledger"}}
	for _, m := range report.Mismatches {
		data = append(data, []string{
			strconv.Itoa(m.FighterIndex),
			m.Field,
			strconv.Itoa(m.Computed),
			strconv.Itoa(m.Authoritative),
		})
	}
	table, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", err
	}
	header := pterm.Error.Sprintfln("%s: %d mismatched field(s)", summary, len(report.Mismatches))
	return header + table + "\n", nil
}
