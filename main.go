package main

import "github.com/soundvault/ms-go-auth/cmd"

func main() {
	cmd.Execute()
}
