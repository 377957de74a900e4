// Command demoserver serves versioned, image-heavy pages for trying cleanweb.
// Usage: go run ./cmd/demoserver [port]
// Default port: 9999
package main

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/raysh454/cleanweb/internal/demoserver"
)

func main() {
	cfg := demoserver.DefaultConfig()

	if len(os.Args) > 1 {
		port, err := strconv.Atoi(os.Args[1])
		if err != nil || port < 1 || port > 65535 {
			log.Fatalf("Invalid port: %s", os.Args[1])
		}
		cfg.Port = port
	}

	fmt.Println("cleanweb demo site")
	fmt.Println()
	for _, p := range demoserver.GetAllPages() {
		fmt.Printf("  %-14s %s\n", p.Path, p.Description)
	}
	fmt.Println()
	fmt.Println("POST /demo/bump-all to move every page to its next version.")
	fmt.Println()

	server := demoserver.NewDemoServer(cfg)
	if err := server.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
