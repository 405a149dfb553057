package ratelimiter_test

import (
	"context"
	"fmt"
	"time"

	"galileo/ratelimiter"
)

func ExampleTokenBucket_Allow() {
	tb := ratelimiter.NewTokenBucket(3, time.Hour)
	defer tb.Stop()

	for i := 0; i < 5; i++ {
		if tb.Allow() {
			fmt.Printf("Request %d: Allowed\n", i+1)
		} else {
			fmt.Printf("Request %d: Rate limited\n", i+1)
		}
	}
	// Output:
	// Request 1: Allowed
	// Request 2: Allowed
	// Request 3: Allowed
	// Request 4: Rate limited
	// Request 5: Rate limited
}

func ExampleTokenBucket_WaitN() {
	// One bucket token per prompt token, refilled over a minute.
	tb := ratelimiter.NewTokenBucket(1000, time.Minute/1000)
	defer tb.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := tb.WaitN(ctx, 250); err != nil {
		fmt.Println("rate limited:", err)
		return
	}
	fmt.Println("prompt admitted")
	// Output:
	// prompt admitted
}
