package ctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/oshokin/tripwire/internal/config"
	"github.com/oshokin/tripwire/internal/logger"
	"github.com/oshokin/tripwire/internal/monitor"
	"github.com/oshokin/tripwire/internal/service/common"
	"github.com/oshokin/tripwire/internal/version"
)

// Operator actions.
const (
	ActionAlive  = "alive"
	ActionStatus = "status"
	ActionFire   = "fire"
)

// DefaultWait is how long replies are awaited.
const DefaultWait = 5 * time.Second

var (
	errUnknownAction = errors.New("unknown action")
	errSecretMissing = errors.New("fire requires the secret")
)

// Options controls one operator command.
type Options struct {
	// ConfigPath specifies the path to the settings file.
	ConfigPath string
	// Address overrides the relay address.
	Address string
	// Chat overrides the operator chat name; defaults to user@host.
	Chat string
	// Action is alive, status or fire.
	Action string
	// Secret is the parameter of the fire action.
	Secret string
	// Wait is how long to print replies; zero posts without waiting.
	Wait time.Duration
	// Out receives the printed output; defaults to stdout.
	Out io.Writer
}

// Run posts the command for opts.Action and prints replies for opts.Wait.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "tripwire-ctl")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	text, err := commandText(opts.Action, opts.Secret, cfg.Remote.Command)
	if err != nil {
		return err
	}

	if opts.Address != "" {
		cfg.Remote.Address = opts.Address
	}

	if err = cfg.ResolveEndpoints(ctx, config.EndpointRemote); err != nil {
		logger.WarnKV(ctx, "Endpoint auto-detection failed", "error", err)
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	chat := opts.Chat
	if chat == "" {
		actor, actorErr := common.DetectActor()
		if actorErr != nil {
			logger.WarnKV(ctx, "Failed to detect actor", "error", actorErr)
		}

		chat = common.ChatID(actor)
	}

	client, err := common.Dial(ctx, cfg.Remote.Address, cfg.Remote.Token,
		common.WithCallTimeout(cfg.Remote.Timeout),
		common.WithUserAgent(version.UserAgent("tripwire-ctl")))
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	defer func() {
		_ = client.Close()
	}()

	postCtx, cancel := context.WithTimeout(ctx, cfg.Remote.Timeout+max(opts.Wait, 0))
	defer cancel()

	posted, err := client.Post(postCtx, chat, text)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Command %s delivered to %d listener(s)\n", posted.Ack.ID, posted.Ack.Delivered)

	if opts.Wait <= 0 {
		return nil
	}

	waitCtx, stopWaiting := context.WithTimeout(ctx, opts.Wait)
	defer stopWaiting()

	stop := context.AfterFunc(waitCtx, cancel)
	defer stop()

	for {
		reply, err := posted.NextReply()
		if err != nil {
			if waitCtx.Err() != nil || errors.Is(err, common.ErrStreamClosed) {
				return nil
			}

			return fmt.Errorf("read reply: %w", err)
		}

		fmt.Fprintln(out, reply.Text)
	}
}

// commandText renders the chat command for action.
func commandText(action, secret, fireCommand string) (string, error) {
	switch strings.ToLower(action) {
	case ActionAlive:
		return "/" + monitor.AliveCommand, nil
	case ActionStatus:
		return "/" + monitor.StatusCommand, nil
	case ActionFire:
		if secret == "" {
			return "", errSecretMissing
		}

		return "/" + fireCommand + " " + secret, nil
	default:
		return "", fmt.Errorf("%w: %q", errUnknownAction, action)
	}
}
