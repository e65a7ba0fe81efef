package main

import "github.com/remindly/followup-gateway/cmd"

func main() {
	cmd.Execute()
}
