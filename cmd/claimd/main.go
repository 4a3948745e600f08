package main

import (
	"log"

	"airdrop/services/claimd"
)

func main() {
	if err := claimd.Main(); err != nil {
		log.Fatalf("claimd: %v", err)
	}
}
