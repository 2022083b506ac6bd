package main

import (
	"log"

	"github.com/joho/godotenv"

	"github.com/chatsync/chatsync/internal/app"
)

func main() {
	_ = godotenv.Load(".env")

	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
