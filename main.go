package main

import "kvbench/cmd"

func main() {
	cmd.Execute()
}
