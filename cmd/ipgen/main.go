package main

import "github.com/zlobste/ipgen/internal/cli"

func main() {
	cli.Execute()
}
