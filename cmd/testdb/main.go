package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/hexcrawl/backend/internal/config"
	"github.com/hexcrawl/backend/internal/db/mongodb"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Create a context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Create logger
	logger, _ := zap.NewDevelopment()
	sugar := logger.Sugar()
	defer logger.Sync()

	// Connect through the circuit breaker wrapper so this tool exercises
	// the same resilience path the server depends on.
	fmt.Println("Attempting to connect to MongoDB...")
	client, err := mongodb.CreateClient(ctx, cfg.MongoDB.URI, sugar)
	if err != nil {
		fmt.Printf("Failed to connect to MongoDB: %v\n", err)
		os.Exit(1)
	}
	defer client.Client().Disconnect(context.Background())

	// Try to ping
	fmt.Println("Connection established, attempting to ping...")
	err = client.Ping(ctx, nil)
	if err != nil {
		fmt.Printf("Failed to ping MongoDB: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Successfully connected to MongoDB!")

	// Make sure the indexes the session engine relies on can be created
	fmt.Printf("\nEnsuring indexes in database: %s\n", cfg.MongoDB.Database)
	if err := mongodb.CreateIndexes(ctx, client.Client(), cfg.MongoDB.Database); err != nil {
		fmt.Printf("Failed to create indexes: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Indexes ensured successfully!")

	// Now try to list collections
	db := client.Database(cfg.MongoDB.Database)
	collections, err := db.ListCollectionNames(ctx, bson.M{})
	if err != nil {
		fmt.Printf("Failed to list collections: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nCollections in database:")
	if len(collections) == 0 {
		fmt.Println("No collections found. Database is empty or not initialized.")
	} else {
		for _, collection := range collections {
			fmt.Printf("- %s\n", collection)
		}
	}

	// Count the documents in the collections the session engine reads on
	// room load, so a misconfigured database name shows up as all-zero.
	fmt.Println("\nDocument counts:")
	for _, collName := range []string{
		cfg.MongoDB.MemberColl,
		cfg.MongoDB.VisibilityColl,
		cfg.MongoDB.HexColl,
		cfg.MongoDB.TokenColl,
	} {
		coll := mongodb.GetCollection(client.Client(), cfg.MongoDB.Database, collName)
		count, err := coll.CountDocuments(ctx, bson.M{})
		if err != nil {
			fmt.Printf("Failed to count documents in %s: %v\n", collName, err)
			os.Exit(1)
		}
		fmt.Printf("- %s: %d\n", collName, count)
	}
}
