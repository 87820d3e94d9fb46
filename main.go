/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/hoamxTrav/hoamx-watcher-agent/cmd"

func main() {
	cmd.Execute()
}
