// Package main is the entry point for the zeitdieb CLI.
package main

import "zeitdieb.dev/pkg/zeitdieb/cmd"

func main() {
	cmd.Execute()
}
