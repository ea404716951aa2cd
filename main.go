package main

import (
	"github.com/devsisters/checkpoint/cmd"
)

func main() {
	cmd.Execute()
}
