package main

import "github.com/tanq16/melo/cmd"

func main() {
	cmd.Execute()
}
