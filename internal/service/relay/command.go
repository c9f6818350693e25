package relay

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	api "github.com/oshokin/tripwire/internal/api/grpc/relay"
	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/logger"
)

// Options controls the tripwire-relay process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// Ready, when set, receives the bound address once the server is listening.
	Ready chan<- string
}

// ErrNoBots indicates that the relay has nobody to serve.
var ErrNoBots = errors.New("no bots configured")

// Run starts the relay gRPC server and blocks until ctx is canceled or the server stops.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "tripwire-relay")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	relaySettings := settings.Relay
	if opts.ListenAddress != "" {
		relaySettings.ListenAddress = opts.ListenAddress
	}

	if err = relaySettings.Validate(); err != nil {
		return err
	}

	if len(relaySettings.Bots) == 0 {
		return ErrNoBots
	}

	// Setup TCP listener for gRPC server.
	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", relaySettings.ListenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", relaySettings.ListenAddress, err)
	}

	grpcServer := grpc.NewServer()
	api.RegisterRelayServiceServer(grpcServer, api.NewServer(newService(relaySettings)))

	logger.InfoKV(ctx, "Relay listening", "listen_address", lis.Addr().String(), "bots", len(relaySettings.Bots))

	if opts.Ready != nil {
		opts.Ready <- lis.Addr().String()
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")

		// Subscribe streams never end on their own, so a graceful stop would hang.
		grpcServer.Stop()

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "Relay stopped")

	return nil
}
