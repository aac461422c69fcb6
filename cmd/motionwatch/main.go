package main

import "github.com/swdee/go-motionwatch/cmd/motionwatch/cmd"

func main() {
	cmd.Execute()
}
