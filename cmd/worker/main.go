package main

import "github.com/bjpl/inteljobs/services/worker/cli"

func main() {
	cli.Execute()
}
