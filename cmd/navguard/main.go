package main

import "github.com/ppiankov/navguard/internal/cli"

func main() {
	cli.Execute()
}
