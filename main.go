package main

import "github.com/cadetops/muster/cmd"

func main() {
	cmd.Execute()
}
