package main

import "github.com/vibast-solutions/ms-go-credits/cmd"

func main() {
	cmd.Execute()
}
