package main

import "github.com/oshokin/tripwire/cmd/tripwire-relay/cmd"

func main() {
	cmd.Execute()
}
