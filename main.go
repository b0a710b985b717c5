package main

import "github.com/Tiliavir/precise-time-tracker/cmd"

func main() {
	cmd.Execute()
}
