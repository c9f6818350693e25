package main

import "github.com/oshokin/tripwire/cmd/tripwire-ctl/cmd"

func main() {
	cmd.Execute()
}
