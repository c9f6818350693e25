package arm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	triggerrepo "github.com/oshokin/tripwire/internal/repository/trigger"
)

// Last prints the record of the last fired tripwire to w.
func Last(ctx context.Context, configPath string, w io.Writer) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	record, err := triggerrepo.NewFileRepository(cfg.StateFile).Load(ctx)
	if errors.Is(err, triggerrepo.ErrNotFound) {
		_, err = fmt.Fprintln(w, "No trigger recorded.")
		return err
	}

	if err != nil {
		return err
	}

	_, err = fmt.Fprint(w, formatRecord(record))

	return err
}

// formatRecord renders a record for the terminal.
func formatRecord(r *trigger.Record) string {
	host, user := "unknown", "unknown"
	if r.Actor != nil {
		host, user = r.Actor.Hostname, r.Actor.Username
	}

	modes := trigger.JoinSources(r.ActiveModes)
	if modes == "" {
		modes = "none"
	}

	return fmt.Sprintf("source:       %s\nobserved at:  %s\nhost:         %s\nuser:         %s\nactive modes: %s\n",
		r.Source, r.ObservedAt.Local().Format(time.RFC3339), host, user, modes)
}
