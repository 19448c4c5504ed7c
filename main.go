package main

import "github.com/campbelljlowman/auxparty-api/cmd"

func main() {
	cmd.Execute()
}
