package main

import "testrig/internal/cli"

func main() {
	cli.Execute()
}
