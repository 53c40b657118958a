package main

import (
	"log"
	"os"
	"time"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/admin"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/authtoken"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/database"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/groups"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/organizations"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/provider"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/resources"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/sso"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/ssosettings"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/ssostate"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/tags"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Tecnobutrul/passbolt-api-sub002/api/swagger"
)

// @title Passbolt API
// @version 1.0
// @description A team password manager backend with SSO authentication, multi-tenancy, and per-user encrypted secrets.

// @contact.name Passbolt API Support
// @contact.url https://github.com/Tecnobutrul/passbolt-api-sub002

// @license.name AGPL-3.0
// @license.url https://www.gnu.org/licenses/agpl-3.0.html

// @host localhost:8080
// @BasePath /api

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT token. Format: "Bearer {token}"

func main() {
	// Get database path from environment or use default
	dbPath := os.Getenv("PASSBOLT_DB_PATH")
	if dbPath == "" {
		dbPath = "passbolt.db"
	}

	// Connect to database
	if err := database.Connect(dbPath); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Run auto-migrations
	if err := models.AutoMigrate(database.GetDB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Database migrations completed")

	// Ensure the global organization exists (must run before admin creation)
	globalOrg, err := ensureGlobalOrgExists()
	if err != nil {
		log.Fatalf("Failed to ensure global organization exists: %v", err)
	}

	// Create default admin user if no admin exists
	if err := ensureAdminExists(globalOrg); err != nil {
		log.Fatalf("Failed to ensure admin user exists: %v", err)
	}

	// Get base URL from environment or use default
	baseURL := os.Getenv("PASSBOLT_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}

	// SSO wiring: adapters are cached per setting and rebuilt on settings changes
	registry := provider.NewRegistry(baseURL + "/api/sso/callback")
	settingsService := ssosettings.NewService(database.GetDB(), ssosettings.NewLogSink(), registry)
	ssoService := sso.NewService(database.GetDB(), settingsService, registry, nil)

	// Deactivate expired SSO states and authentication tokens in the background
	startReaper(10 * time.Minute)

	// Set up Gin router
	r := gin.Default()

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API routes
	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(200, gin.H{
				"status":  "ok",
				"service": "passbolt",
			})
		})

		// Auth routes (login is public, me/logout require a session)
		authHandler := auth.NewHandler(database.GetDB())
		authHandler.RegisterPublicRoutes(api.Group("/auth"))
		authHandler.RegisterRoutes(api.Group("/auth", auth.AuthMiddleware()))

		// SSO routes (public, organization resolved from the request host)
		ssoHandler := sso.NewHandler(ssoService)
		ssoGroup := api.Group("/sso")
		ssoGroup.Use(auth.OrgMiddleware(database.GetDB()))
		ssoHandler.RegisterRoutes(ssoGroup)

		// Organization routes (protected)
		orgsHandler := organizations.NewHandler(database.GetDB())
		orgsGroup := api.Group("/organizations")
		orgsGroup.Use(auth.AuthMiddleware())
		orgsHandler.RegisterRoutes(orgsGroup)
		orgsHandler.RegisterDomainRoutes(orgsGroup)

		// Group routes (protected, org-scoped)
		groupsHandler := groups.NewHandler(database.GetDB())
		groupsGroup := api.Group("/groups")
		groupsGroup.Use(auth.OrgMiddleware(database.GetDB()), auth.AuthMiddleware())
		groupsHandler.RegisterRoutes(groupsGroup)

		// Resource routes (protected, org-scoped); tagging lives on resources
		resourcesHandler := resources.NewHandler(database.GetDB())
		tagsHandler := tags.NewHandler(database.GetDB())
		resourcesGroup := api.Group("/resources")
		resourcesGroup.Use(auth.OrgMiddleware(database.GetDB()), auth.AuthMiddleware())
		resourcesHandler.RegisterRoutes(resourcesGroup)
		tagsHandler.RegisterResourceRoutes(resourcesGroup)

		// Tag listing (protected, org-scoped)
		tagsGroup := api.Group("/tags")
		tagsGroup.Use(auth.OrgMiddleware(database.GetDB()), auth.AuthMiddleware())
		tagsHandler.RegisterRoutes(tagsGroup)

		// Admin routes (admin role required)
		adminHandler := admin.NewHandler(database.GetDB())
		adminGroup := api.Group("/admin")
		adminGroup.Use(auth.OrgMiddleware(database.GetDB()), auth.AuthMiddleware(), auth.RequireAdmin())
		adminHandler.RegisterRoutes(adminGroup)

		// SSO settings management (admin only), including configuration dry runs
		settingsHandler := ssosettings.NewHandler(settingsService)
		settingsGroup := adminGroup.Group("/sso/settings")
		settingsHandler.RegisterRoutes(settingsGroup)
		ssoHandler.RegisterAdminRoutes(settingsGroup)
	}

	// Get port from environment or use default
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Starting Passbolt API server on :%s", port)
	if err := r.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// startReaper periodically deactivates expired SSO states and authentication
// tokens so abandoned flows cannot be resumed later.
func startReaper(interval time.Duration) {
	states := ssostate.NewStore(database.GetDB())
	tokens := authtoken.NewStore(database.GetDB())

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for range ticker.C {
			if n, err := states.ReapExpired(); err != nil {
				log.Printf("Failed to reap expired SSO states: %v", err)
			} else if n > 0 {
				log.Printf("Deactivated %d expired SSO states", n)
			}
			if n, err := tokens.ReapExpired(); err != nil {
				log.Printf("Failed to reap expired authentication tokens: %v", err)
			} else if n > 0 {
				log.Printf("Deactivated %d expired authentication tokens", n)
			}
		}
	}()
}

// ensureGlobalOrgExists creates the "Default" organization if it doesn't exist.
// This organization serves single-tenant deployments and unrecognized domains.
// Returns the global organization.
func ensureGlobalOrgExists() (*models.Organization, error) {
	db := database.GetDB()

	// Check if global org already exists
	var globalOrg models.Organization
	err := db.Where("is_global = ?", true).First(&globalOrg).Error
	if err == nil {
		return &globalOrg, nil // Already exists
	}

	// Create the global organization
	globalOrg = models.Organization{
		Name:     "Default",
		Slug:     "default",
		IsGlobal: true,
	}

	if err := db.Create(&globalOrg).Error; err != nil {
		return nil, err
	}

	log.Printf("Created global organization: %s (ID: %d)", globalOrg.Name, globalOrg.ID)
	return &globalOrg, nil
}

// ensureAdminExists creates a default admin user if no admin exists in the
// database. The admin is added to the global organization.
func ensureAdminExists(globalOrg *models.Organization) error {
	db := database.GetDB()

	// Check if any admin user exists
	var count int64
	if err := db.Model(&models.User{}).Where("system_role = ?", models.SystemRoleAdmin).Count(&count).Error; err != nil {
		return err
	}

	if count > 0 {
		return nil // Admin already exists
	}

	adminEmail := os.Getenv("PASSBOLT_ADMIN_EMAIL")
	if adminEmail == "" {
		adminEmail = "admin@passbolt.local"
	}
	adminPassword := os.Getenv("PASSBOLT_ADMIN_PASSWORD")
	if adminPassword == "" {
		adminPassword = "changeme"
		log.Println("WARNING: PASSBOLT_ADMIN_PASSWORD not set, using default password")
	}

	hashedPassword, err := auth.HashPassword(adminPassword)
	if err != nil {
		return err
	}

	adminUser := models.User{
		Email:        adminEmail,
		Name:         "Admin",
		PasswordHash: hashedPassword,
		Active:       true,
		SystemRole:   models.SystemRoleAdmin,
	}

	if err := db.Create(&adminUser).Error; err != nil {
		return err
	}

	// Add admin to global organization as admin
	orgMembership := models.OrganizationMembership{
		OrganizationID: globalOrg.ID,
		UserID:         adminUser.ID,
		Role:           models.OrgRoleAdmin,
	}
	if err := db.Create(&orgMembership).Error; err != nil {
		return err
	}

	// Create personal group for admin within the global organization
	personalGroup := models.Group{
		OrganizationID: globalOrg.ID,
		Name:           "Admin's Passwords",
		Description:    "Personal passwords for Admin",
	}
	if err := db.Create(&personalGroup).Error; err != nil {
		return err
	}

	// Add admin as admin of personal group
	groupMembership := models.GroupMembership{
		UserID:  adminUser.ID,
		GroupID: personalGroup.ID,
		Role:    models.GroupRoleAdmin,
	}
	if err := db.Create(&groupMembership).Error; err != nil {
		return err
	}

	log.Printf("Created default admin user: %s", adminEmail)
	return nil
}
