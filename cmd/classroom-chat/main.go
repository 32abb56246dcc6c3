package main

import "github.com/nfrund/classroom/cmd/classroom-chat/cmd"

func main() {
	cmd.Execute()
}
