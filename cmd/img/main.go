package main

import "github.com/arpan404/img/internal/cli"

func main() {
	cli.Main()
}
