package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/hexcrawl/backend/internal/api/middleware/auth"
)

func main() {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "SkipTheSecret!!!!"
	}

	userID := uuid.NewString()
	name := os.Getenv("TOKEN_NAME")
	if name == "" {
		name = "Dev User"
	}

	tokenString, err := auth.GenerateJWT(userID, name, secret, 24)
	if err != nil {
		fmt.Printf("Error generating token: %v\n", err)
		return
	}

	fmt.Printf("Generated user ID: %s\n", userID)
	fmt.Printf("Valid JWT token:\n%s\n", tokenString)
}
