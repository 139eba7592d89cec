package main

import "github.com/jrsteele09/go-session-auth/cmd/authctl/cmd"

func main() {
	cmd.Execute()
}
