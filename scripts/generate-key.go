// Package main is a development utility for generating a signing secret for
// AUDIO_JWT_SECRET. Without a configured secret the server picks a random one at
// startup, which logs every user out on restart; run this once and store the
// output in the deployment's secret store so sessions survive restarts and are
// shared by all replicas.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		log.Fatal(err)
	}

	fmt.Println("==========================================================")
	fmt.Println("JWT Signing Secret Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nAUDIO_JWT_SECRET=%s\n", hex.EncodeToString(secret))
	fmt.Println("\n==========================================================")
	fmt.Println("Changing this value invalidates every issued token and session.")
	fmt.Println("==========================================================")
}
