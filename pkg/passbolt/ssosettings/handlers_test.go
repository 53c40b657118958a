package ssosettings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type handlerFixture struct {
	router *gin.Engine
	svc    *Service
	db     *gorm.DB
	header string
}

func setupHandlerTest(t *testing.T) *handlerFixture {
	db := setupTestDB(t)
	if err := db.Create(&models.Organization{Name: "Default", Slug: "default", IsGlobal: true}).Error; err != nil {
		t.Fatalf("Failed to create global org: %v", err)
	}

	hashedPassword, _ := auth.HashPassword("password123")
	adminUser := &models.User{
		Email:        "admin@test.com",
		Name:         "Admin",
		PasswordHash: hashedPassword,
		Active:       true,
		SystemRole:   models.SystemRoleAdmin,
	}
	if err := db.Create(adminUser).Error; err != nil {
		t.Fatalf("Failed to create admin: %v", err)
	}
	token, _ := auth.GenerateToken(adminUser.ID, adminUser.Email, string(adminUser.SystemRole))

	gin.SetMode(gin.TestMode)
	r := gin.New()
	svc := NewService(db, nil, nil)
	h := NewHandler(svc)

	settingsGroup := r.Group("/admin/sso/settings")
	settingsGroup.Use(auth.OrgMiddleware(db), auth.AuthMiddleware(), auth.RequireAdmin())
	h.RegisterRoutes(settingsGroup)

	return &handlerFixture{router: r, svc: svc, db: db, header: "Bearer " + token}
}

func doRequest(r *gin.Engine, method, path, header string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateSettingEndpoint(t *testing.T) {
	f := setupHandlerTest(t)

	w := doRequest(f.router, "POST", "/admin/sso/settings", f.header, CreateSettingRequest{
		Provider:     "azure",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TenantID:     "tenant-1",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp SettingResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "draft" {
		t.Errorf("Expected draft status, got %s", resp.Status)
	}
	if resp.EmailClaim != "email" {
		t.Errorf("Expected email claim default, got %s", resp.EmailClaim)
	}
	if strings.Contains(w.Body.String(), "client-secret") {
		t.Error("Expected client secret to be withheld from responses")
	}
}

func TestCreateAzureSettingRequiresTenant(t *testing.T) {
	f := setupHandlerTest(t)

	w := doRequest(f.router, "POST", "/admin/sso/settings", f.header, CreateSettingRequest{
		Provider:     "azure",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestCreateGoogleSettingWithoutTenant(t *testing.T) {
	f := setupHandlerTest(t)

	w := doRequest(f.router, "POST", "/admin/sso/settings", f.header, CreateSettingRequest{
		Provider:     "google",
		ClientID:     "client-id",
		ClientSecret: "client-secret",
	})
	if w.Code != http.StatusCreated {
		t.Errorf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}
}

func TestActivateSettingEndpoint(t *testing.T) {
	f := setupHandlerTest(t)
	setting := draftSetting(t, f.svc, 1, models.SsoProviderAzure)

	w := doRequest(f.router, "POST", fmt.Sprintf("/admin/sso/settings/%d/activate", setting.ID), f.header, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SettingResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != "active" {
		t.Errorf("Expected active status, got %s", resp.Status)
	}
}

func TestUpdateSettingEndpoint(t *testing.T) {
	f := setupHandlerTest(t)
	setting := draftSetting(t, f.svc, 1, models.SsoProviderAzure)

	newClaim := "upn"
	w := doRequest(f.router, "PUT", fmt.Sprintf("/admin/sso/settings/%d", setting.ID), f.header, UpdateSettingRequest{
		EmailClaim: &newClaim,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp SettingResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.EmailClaim != "upn" {
		t.Errorf("Expected email claim upn, got %s", resp.EmailClaim)
	}
}

func TestUpdateSettingCannotClearAzureTenant(t *testing.T) {
	f := setupHandlerTest(t)
	setting := draftSetting(t, f.svc, 1, models.SsoProviderAzure)

	empty := ""
	w := doRequest(f.router, "PUT", fmt.Sprintf("/admin/sso/settings/%d", setting.ID), f.header, UpdateSettingRequest{
		TenantID: &empty,
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGetSettingNotFound(t *testing.T) {
	f := setupHandlerTest(t)

	w := doRequest(f.router, "GET", "/admin/sso/settings/999", f.header, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestDeleteSettingEndpoint(t *testing.T) {
	f := setupHandlerTest(t)
	setting := draftSetting(t, f.svc, 1, models.SsoProviderAzure)

	w := doRequest(f.router, "DELETE", fmt.Sprintf("/admin/sso/settings/%d", setting.ID), f.header, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var count int64
	f.db.Model(&models.SsoSetting{}).Where("id = ?", setting.ID).Count(&count)
	if count != 0 {
		t.Error("Expected setting to be deleted")
	}
}

func TestSettingsRequireAdmin(t *testing.T) {
	f := setupHandlerTest(t)

	hashedPassword, _ := auth.HashPassword("password123")
	user := &models.User{
		Email:        "user@test.com",
		Name:         "User",
		PasswordHash: hashedPassword,
		Active:       true,
		SystemRole:   models.SystemRoleUser,
	}
	if err := f.db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create user: %v", err)
	}
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))

	w := doRequest(f.router, "GET", "/admin/sso/settings", "Bearer "+token, nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}
