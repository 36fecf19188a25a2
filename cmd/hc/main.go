package main

import (
	"log"

	"hostcache/cmd/hc/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
