package main

import "github.com/agent-forge/agent-forge/cmd"

func main() {
	cmd.Execute()
}
