package main

import "github.com/javanhut/fxstore/cli"

func main() {
	cli.Execute()
}
