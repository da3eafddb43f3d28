// config/redis.go
package config

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

// ConnectRedis connects to the Redis instance backing remember-me sessions.
// Redis is optional: when it is unreachable the server still boots and only
// remember-me logins are disabled.
func ConnectRedis() *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			log.Printf("Warning: REDIS_DB %q is not a number, using database 0", v)
		} else {
			db = parsed
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     os.Getenv("REDIS_PASSWORD"),
		DB:           db,
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
		MaxRetries:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis unreachable at %s: %v; remember-me logins disabled", addr, err)
		return nil
	}

	log.Printf("Connected to Redis at %s (database %d)", addr, db)
	RedisClient = client
	return client
}

// CloseRedis closes the Redis connection if one was established
func CloseRedis() {
	if RedisClient != nil {
		RedisClient.Close()
	}
}
