// Package main is the entry point for the listingradar service.
package main

import "github.com/wasatchdata/listingradar/cmd"

func main() {
	cmd.Execute()
}
