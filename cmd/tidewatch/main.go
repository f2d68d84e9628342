package main

import "github.com/nholden/tidewatch/internal/cli"

func main() {
	cli.Execute()
}
