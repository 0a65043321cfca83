package main

import (
	"fmt"
	"os"

	"github.com/mates-hr/screenshare-server-go/internal/util"
)

// Generates an API token and the hash to store in users.api_token_hash.
func main() {
	token, err := util.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("token: %s\n", token)
	fmt.Printf("hash:  %s\n", util.HashToken(token))
}
