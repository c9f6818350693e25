package main

import "github.com/oshokin/tripwire/cmd/tripwire/cmd"

func main() {
	cmd.Execute()
}
