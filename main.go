package main

import "github.com/StinkyLord/dynatrace-topology-builder/cmd"

func main() {
	cmd.Execute()
}
