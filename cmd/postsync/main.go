package main

import "postsync/internal/cmd"

func main() {
	cmd.Run()
}
