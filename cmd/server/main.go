package main

import "github.com/Mangamer21/Aquadroom-portofoon/cmd/server/commands"

func main() {
	commands.Execute()
}
