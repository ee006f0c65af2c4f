package main

import "github.com/darceymckelvey/codestrata-auth/cmd/stratactl/cmd"

func main() {
	cmd.Execute()
}
