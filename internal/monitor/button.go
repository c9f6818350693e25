package monitor

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/oshokin/tripwire/internal/bus"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/domain/trigger"
	"github.com/oshokin/tripwire/internal/logger"
)

// scanWizardID is the identifier of the pairing session this monitor opens.
const scanWizardID = 1

var errButtonHostUnresolved = errors.New("button host is not resolved")

// ButtonMonitor fires on a long press of a button paired with flicd.
type ButtonMonitor struct {
	cfg config.Button
}

// NewButton validates cfg and builds a button monitor.
// The host must already be resolved by Config.ResolveEndpoints.
func NewButton(cfg config.Button) (*ButtonMonitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Host == config.AutoHost {
		return nil, errButtonHostUnresolved
	}

	return &ButtonMonitor{cfg: cfg}, nil
}

// Source implements Monitor.
func (m *ButtonMonitor) Source() trigger.Source {
	return trigger.PhysicalButton
}

// Start connects to flicd, pairs and connects buttons, and waits for a hold.
func (m *ButtonMonitor) Start(ctx context.Context, sender bus.Sender) error {
	ctx = logger.WithName(ctx, "monitor.button")

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", m.cfg.Address())
	if err != nil {
		return fmt.Errorf("connect flicd: %w", err)
	}

	defer conn.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(runCtx, func() {
		_ = conn.Close()
	})
	defer stop()

	flic := newFlicConn(conn)

	if err = flic.createScanWizard(scanWizardID); err != nil {
		return err
	}

	logger.WarnKV(ctx, "Button trigger connected", "flicd", m.cfg.Address())

	wg.Go(func() {
		timer := time.NewTimer(m.cfg.ScanWizardWait)
		defer timer.Stop()

		select {
		case <-runCtx.Done():
			return
		case <-timer.C:
		}

		if err := flic.getInfo(); err != nil && runCtx.Err() == nil {
			logger.WarnKV(ctx, "Failed to request verified buttons", "error", err)
		}
	})

	return m.serve(runCtx, flic, sender)
}

// serve reads flicd events until a hold fires or the connection ends.
func (m *ButtonMonitor) serve(ctx context.Context, flic *flicConn, sender bus.Sender) error {
	connected := make(map[BDAddr]uint32)

	connect := func(addr BDAddr) {
		if _, ok := connected[addr]; ok {
			return
		}

		connID := uint32(len(connected) + 1) //nolint:gosec // Few buttons.
		connected[addr] = connID

		if err := flic.createConnectionChannel(connID, addr); err != nil {
			logger.WarnKV(ctx, "Failed to connect button", "button", addr.String(), "error", err)
			return
		}

		logger.InfoKV(ctx, "Button armed", "button", addr.String(), "conn_id", connID)
	}

	for {
		opcode, payload, err := flic.readPacket()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("read flicd: %w", err)
		}

		switch opcode {
		case flicEvtGetInfoResponse:
			addrs, err := decodeVerifiedButtons(payload)
			if err != nil {
				logger.WarnKV(ctx, "Malformed flicd info response", "error", err)
				continue
			}

			for _, addr := range addrs {
				connect(addr)
			}
		case flicEvtNewVerifiedButton:
			addr, err := decodeAddr(payload)
			if err != nil {
				logger.WarnKV(ctx, "Malformed flicd pairing event", "error", err)
				continue
			}

			connect(addr)
		case flicEvtButtonSingleOrDoubleClickOrHold:
			click, err := decodeClick(payload)
			if err != nil {
				logger.WarnKV(ctx, "Malformed flicd click event", "error", err)
				continue
			}

			if click.ClickType != ClickButtonHold {
				logger.DebugKV(ctx, "Ignoring click", "conn_id", click.ConnID, "type", click.ClickType)
				continue
			}

			fire(ctx, sender, trigger.PhysicalButton)

			return nil
		}
	}
}
