package main

import "github.com/bryanchriswhite/hopper/cmd/hopper/commands"

func main() {
	commands.Execute()
}
