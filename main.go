package main

import "github.com/yuki-matsu783/electron-bolt/cmd"

func main() {
	cmd.Execute()
}
