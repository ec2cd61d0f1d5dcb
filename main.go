package main

import "github.com/kiesman99/mapwizard/cmd"

func main() {
	cmd.Execute()
}
