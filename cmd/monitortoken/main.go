// monitortoken mints an operator token for the call monitor endpoints.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"yuzu/receptionist/internal/auth"
	"yuzu/receptionist/internal/config"
)

func main() {
	subject := flag.String("subject", "operator", "token subject")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	if cfg.Monitor.TokenSecret == "" {
		log.Fatal("MONITOR_TOKEN_SECRET not set")
	}
	tok, err := auth.GenerateMonitorToken(cfg.Monitor.TokenSecret, *subject, time.Now().Add(*ttl).Unix())
	if err != nil {
		log.Fatalf("token: %v", err)
	}
	fmt.Println(tok)
}
