package main

import "github.com/diagnosis/roomlife/services/rooms/internal/cli"

func main() {
	cli.Execute()
}
