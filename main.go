package main

import "github.com/audiolibrelab/dualcap/cmd"

func main() {
	cmd.Execute()
}
