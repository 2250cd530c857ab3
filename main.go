package main

import "github.com/kozaktomas/faceproc/cmd"

func main() {
	cmd.Execute()
}
