package main

import "github.com/bryanchriswhite/histocam/cmd/histocam/commands"

func main() {
	commands.Execute()
}
