package main

import "github.com/kenta2/cryptsetup/cmd"

func main() {
	cmd.Execute()
}
