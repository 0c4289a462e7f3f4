package main

import "github.com/mukkaai/authd/cmd/authd/cmd"

func main() {
	cmd.Execute()
}
