package main

import "github.com/kudeepakh/farmqueue/cmd"

func main() {
	cmd.Execute()
}
