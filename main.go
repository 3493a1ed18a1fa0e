package main

import "github.com/krishanu7/battleship-engine/cmd"

func main() {
	cmd.Execute()
}
