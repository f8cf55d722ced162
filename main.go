package main

import "pixie-rpc/cmd"

func main() {
	cmd.Execute()
}
