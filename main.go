package main

import "github.com/stephnangue/vortex/cmd"

func main() {
	cmd.Execute()
}
