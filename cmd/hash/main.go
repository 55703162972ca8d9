// Package main prints a bcrypt hash for a login password. The server stores only
// hashes in the USERS map (or auth.users), so this is how an operator adds a user
// without running the server:
//
//	go run ./cmd/hash -user alice
//	USERS='{"alice":"$2a$12$..."}'
//
// The password is read from stdin so it does not end up in shell history.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/zahid0/audio-app/internal/auth"
)

func main() {
	user := flag.String("user", "", "username; when set, prints a USERS JSON entry instead of the bare hash")
	flag.Parse()

	fmt.Fprint(os.Stderr, "Password: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		log.Fatalf("failed to read password: %v", err)
	}
	password := strings.TrimRight(line, "\r\n")

	hash, err := auth.HashPassword(password)
	if err != nil {
		log.Fatal(err)
	}

	if *user == "" {
		fmt.Println(hash)
		return
	}
	entry, err := json.Marshal(map[string]string{*user: hash})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(string(entry))
}
