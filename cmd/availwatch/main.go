package main

import "availwatch/internal/cli"

func main() {
	cli.Execute()
}
