//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	"github.com/oshokin/tripwire/internal/domain/trigger"
)

// DetectActor gathers host and user information for the trigger record.
func DetectActor() (*trigger.Actor, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	currentUser, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("current user: %w", err)
	}

	return &trigger.Actor{
		Hostname: hostname,
		Username: currentUser.Username,
	}, nil
}

// ChatID renders the actor as the chat name an operator posts from.
func ChatID(actor *trigger.Actor) string {
	if actor == nil {
		return "operator"
	}

	return actor.Username + "@" + actor.Hostname
}
