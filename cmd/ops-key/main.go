// ops-key bcrypt-hashes an operator API key for the OPS_API_KEY_HASH env
// var. The plaintext key is handed to internal services; only the hash is
// ever deployed.
//
// Usage (from backend directory):
//   go run ./cmd/ops-key -key <plaintext>
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/earnflowhq/earnflow_backend/utils"
)

func main() {
	key := flag.String("key", "", "plaintext operator API key to hash")
	flag.Parse()
	if *key == "" {
		fmt.Fprintln(os.Stderr, "ops-key: -key is required")
		os.Exit(1)
	}

	hash, err := utils.HashAPIKey(*key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ops-key: hashing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(hash))
}
