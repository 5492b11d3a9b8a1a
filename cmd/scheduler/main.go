package main

import "github.com/bjpl/inteljobs/services/scheduler/cli"

func main() {
	cli.Execute()
}
