package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"

	"github.com/aprep/backend/internal/analysis"
	"github.com/aprep/backend/internal/calibration"
	"github.com/aprep/backend/internal/database"
)

func main() {
	// Initialize database
	db, err := database.Connect()
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Optional Redis snapshot cache for parameter reads
	var cache *calibration.ParamsCache
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.Printf("WARN: redis unavailable at %s: %v, parameter reads will skip the snapshot cache", addr, err)
		} else {
			cache = calibration.NewParamsCache(client, cacheTTL())
			log.Printf("Parameter snapshot cache enabled (redis %s)", addr)
		}
	}

	// Initialize services
	calibrator := calibration.NewService(
		calibration.NewPostgresParameterStore(db),
		calibration.NewPostgresAnchorStore(db),
		calibration.NewPostgresResponseStore(db),
		cache,
	)
	analyst := analysis.NewAnalyst()

	// Setup router
	r := mux.NewRouter()
	api := r.PathPrefix("/api/v1").Subrouter()

	calibration.NewHandler(calibrator).RegisterRoutes(api)
	analysis.NewHandler(analyst).RegisterRoutes(api)

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	handler := c.Handler(r)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Server starting on :%s", port)
	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// cacheTTL reads the snapshot cache TTL from CACHE_TTL_SECONDS (default 60s).
func cacheTTL() time.Duration {
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 60 * time.Second
}
