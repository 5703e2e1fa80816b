package main

import "Replayer/cmd"

func main() {
	cmd.Execute()
}
