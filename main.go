package main

import "github.com/MacPhobos/image-search-sub004/cmd"

func main() {
	cmd.Execute()
}
