package main

import (
	"log"

	"github.com/joho/godotenv"

	"labreader/internal/cli"
	"labreader/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}
	if err := logger.Setup(logger.DefaultConfig()); err != nil {
		log.Fatalf("init logger: %v", err)
	}
	cli.Execute()
}
