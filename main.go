package main

import "jozvesaz/cmd"

func main() {
	cmd.Execute()
}
