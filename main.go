package main

import "github.com/koopa0/shiksha/cmd"

func main() {
	cmd.Execute()
}
