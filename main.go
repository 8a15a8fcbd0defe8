package main

import "github.com/gymgate/gymgate/cmd"

func main() {
	cmd.Execute()
}
