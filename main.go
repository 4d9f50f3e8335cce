package main

import "github.com/princinho/adminportal/cmd"

func main() {
	cmd.Execute()
}
