package main

import "GasMonitorAPI/internal/cli"

func main() {
	cli.Execute()
}
