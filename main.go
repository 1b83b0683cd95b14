package main

import (
	"log"
	"time"

	"palettestudio/config"
	"palettestudio/db"
	"palettestudio/handlers"
	"palettestudio/llm"
	"palettestudio/middleware"
	"palettestudio/photos"
	"palettestudio/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

func googleOAuth(cfg *config.Config) *oauth2.Config {
	if !cfg.Google.Enabled() {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		RedirectURL:  cfg.AppURL + "/auth/google/callback",
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config: ", err)
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database: ", err)
	}
	defer database.Close()

	if err := db.ApplySchema(database, "schema.sql"); err != nil {
		log.Fatal("Failed to apply schema: ", err)
	}
	log.Println("Database schema verified")

	sessions := middleware.NewSessionManager(cfg.JWTSecret)
	billing := services.NewStripeClient(cfg.Stripe.SecretKey, cfg.AppURL)
	subs := services.NewSubscriptionService(database, billing, cfg.Stripe.Prices)
	quota := services.NewQuotaService(database)
	mailer := services.NewMailer(cfg.SendgridAPIKey, cfg.FromEmail)

	gemini, err := llm.NewClient(cfg.Gemini.Model, cfg.Gemini.APIKey)
	if err != nil {
		log.Fatal("Failed to configure Gemini client: ", err)
	}
	pexels := photos.NewClient(cfg.PexelsAPIKey)

	authHandler := handlers.NewAuthHandler(database, sessions, subs, mailer, googleOAuth(cfg))
	subHandler := handlers.NewSubscriptionHandler(subs, billing)
	webhookHandler := handlers.NewWebhookHandler(database, billing, cfg.Stripe.Prices, cfg.Stripe.WebhookSecret)
	paletteHandler := handlers.NewPaletteHandler(subs, quota, gemini)
	imageHandler := handlers.NewImageHandler(gemini, pexels)

	r := gin.Default()
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AppURL},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Public allow-list: everything else goes through the session gate.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.POST("/api/auth/register", authHandler.Register)
	r.POST("/api/auth/login", authHandler.Login)
	r.GET("/auth/google", authHandler.GoogleRedirect)
	r.GET("/auth/google/callback", authHandler.GoogleCallback)
	r.GET("/auth/error", authHandler.AuthError)
	r.POST("/api/webhook/stripe", webhookHandler.HandleStripe)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(sessions))
	{
		api.GET("/me", authHandler.Me)
		api.POST("/user/update-password", authHandler.UpdatePassword)
		api.GET("/subscription", subHandler.Get)
		api.POST("/subscription/cancel", subHandler.Cancel)
		api.POST("/subscribe", subHandler.CreateCheckout)
		api.POST("/generate-palette", paletteHandler.Generate)
		api.POST("/search-similar", imageHandler.Search)
	}

	log.Println("Server starting on port " + cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Server failed: ", err)
	}
}
