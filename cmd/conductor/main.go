package main

import "github.com/conductor-sh/conductor/internal/cmd"

func main() {
	cmd.Execute()
}
