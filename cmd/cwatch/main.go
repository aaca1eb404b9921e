package main

import "github.com/emiliopalmerini/cwatch/internal/cli"

func main() {
	cli.Execute()
}
