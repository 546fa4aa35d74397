package main

import "github.com/nextlevelbuilder/hamdam/cmd"

func main() {
	cmd.Execute()
}
