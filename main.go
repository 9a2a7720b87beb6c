package main

import "github.com/eslsoft/lingoledger/cmd"

func main() {
	cmd.Execute()
}
