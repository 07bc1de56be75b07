package main

import "github.com/labtiva/curator/internal/cli"

func main() {
	cli.Execute()
}
