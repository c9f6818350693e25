package integration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/service/relay"
)

const (
	// botName and botToken identify the test bot on the relay.
	botName  = "tripwire-bot"
	botToken = "s3cr3t-bot-credential"
)

// startRelay runs a relay on a loopback port and returns its address.
// The relay stops when the test ends.
func startRelay(t *testing.T) string {
	t.Helper()

	cfg := config.Default()
	cfg.Relay = config.Relay{
		ListenAddress: "127.0.0.1:0",
		Bots:          []config.Bot{{Name: botName, Token: botToken}},
		PostRate:      100,
		PostBurst:     100,
	}

	cfgPath := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, config.Save(cfgPath, &cfg))

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan string, 1)
	done := make(chan error, 1)

	go func() {
		done <- relay.Run(ctx, &relay.Options{
			ConfigPath: cfgPath,
			Ready:      ready,
		})
	}()

	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	select {
	case addr := <-ready:
		return addr
	case err := <-done:
		// Put the result back for the cleanup.
		done <- err

		t.Fatalf("relay stopped before listening: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not start")
	}

	return ""
}
