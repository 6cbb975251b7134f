package main

import "github.com/zots0127/fileshare/cmd/fileshare/cmd"

func main() {
	cmd.Execute()
}
