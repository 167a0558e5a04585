package main

import (
	"log"
	"net/http"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/deckards/deckards-server/internal/auth"
	"github.com/deckards/deckards-server/internal/cache"
	"github.com/deckards/deckards-server/internal/database"
	"github.com/deckards/deckards-server/internal/handlers"
	"github.com/deckards/deckards-server/internal/middleware"
)

func main() {
	if err := auth.Init(); err != nil {
		log.Fatalf("auth init failed: %v", err)
	}
	database.ConnectDB()
	if err := cache.ConnectRedis(); err != nil {
		log.Fatalf("redis connect failed: %v", err)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	rs := handlers.NewRoomServer(logger)

	mux := http.NewServeMux()

	// user endpoints
	mux.HandleFunc("/user/create", handlers.CreateUserHandler)
	mux.HandleFunc("/user/login", handlers.LoginHandler(logger))

	// lobby endpoints
	mux.Handle("/lobby/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateLobbyHandler(rs),
	)))
	mux.Handle("/lobby/list", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.ListLobbiesHandler(rs),
	)))
	mux.Handle("/lobby/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.LobbyWSHandler(logger, rs),
	)))

	// game room websocket
	mux.Handle("/room/ws/", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomWSHandler(logger, rs),
	)))

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}
	logger.Infof("Running on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
