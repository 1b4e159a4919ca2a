package main

import (
	_ "github.com/eleven-am/livecaption/docs"
	"github.com/eleven-am/livecaption/internal/bootstrap"
	"github.com/joho/godotenv"
)

// @title Live Caption Relay API
// @version 1.0.0
// @description Signaling relay and call history for two-party calls with live translated captions

// @BasePath /api/v1

func main() {
	_ = godotenv.Load()
	bootstrap.Run()
}
