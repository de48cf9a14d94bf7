package main

import "github.com/the-answerai/mcp-server-salesforce/cmd"

// Version can be set during build with -ldflags
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
