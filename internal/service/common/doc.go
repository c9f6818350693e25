// Package common holds helpers shared by several services.
//
// It provides the relay gRPC client used both by armed monitors (authenticate,
// listen, reply) and by the operator CLI (post and read replies), plus the
// detection of the current system actor for the trigger record.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
