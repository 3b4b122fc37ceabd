package main

import "github.com/qaforge/recall/cmd/recall/cli"

func main() {
	cli.Execute()
}
