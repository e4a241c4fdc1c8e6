package main

import (
	"github.com/mcmanager/minimanager/cmd"
)

func main() {
	cmd.Execute()
}
