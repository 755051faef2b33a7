// main.go
package main

import (
	"log"

	"ticket-core/cmd"
)

func main() {
	if err := cmd.Start(); err != nil {
		log.Fatal(err)
	}
}
