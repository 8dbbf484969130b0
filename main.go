package main

import "github.com/solovey/codemesh/cmd"

func main() {
	cmd.Execute()
}
