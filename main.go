package main

import "github.com/czha/dgtree/cmd"

func main() {
	cmd.Execute()
}
