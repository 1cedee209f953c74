package main

import "github.com/qobs-build/qcc/cmd"

func main() {
	cmd.Execute()
}
