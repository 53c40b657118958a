package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/auth"
	"github.com/Tecnobutrul/passbolt-api-sub002/pkg/passbolt/models"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	if err := db.Create(&models.Organization{Name: "Default", Slug: "default-org", IsGlobal: true}).Error; err != nil {
		t.Fatalf("Failed to create global org: %v", err)
	}
	return db
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewHandler(db)

	groupRoutes := r.Group("/groups")
	groupRoutes.Use(auth.OrgMiddleware(db), auth.AuthMiddleware())
	h.RegisterRoutes(groupRoutes)

	return r
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	hashedPassword, _ := auth.HashPassword("password123")
	user := &models.User{
		Email:        email,
		Name:         "Test User",
		PasswordHash: hashedPassword,
		Active:       true,
		SystemRole:   models.SystemRoleUser,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	if err := db.Create(&models.OrganizationMembership{
		OrganizationID: 1,
		UserID:         user.ID,
		Role:           models.OrgRoleMember,
	}).Error; err != nil {
		t.Fatalf("Failed to create org membership: %v", err)
	}
	return user
}

func createTestGroup(t *testing.T, db *gorm.DB, name string, admin *models.User) *models.Group {
	group := &models.Group{OrganizationID: 1, Name: name}
	if err := db.Create(group).Error; err != nil {
		t.Fatalf("Failed to create group: %v", err)
	}
	if err := db.Create(&models.GroupMembership{
		GroupID: group.ID,
		UserID:  admin.ID,
		Role:    models.GroupRoleAdmin,
	}).Error; err != nil {
		t.Fatalf("Failed to create group membership: %v", err)
	}
	return group
}

func authHeader(user *models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.SystemRole))
	return "Bearer " + token
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

func TestCreateGroup(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	user := createTestUser(t, db, "user@test.com")

	w := doRequest(r, "POST", "/groups", authHeader(user), CreateGroupRequest{
		Name:        "Engineering",
		Description: "Engineering team vault",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp GroupResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Name != "Engineering" {
		t.Errorf("Expected name Engineering, got %s", resp.Name)
	}
	if resp.Role != "admin" {
		t.Errorf("Expected creator role admin, got %s", resp.Role)
	}
	if resp.MemberCount != 1 {
		t.Errorf("Expected 1 member, got %d", resp.MemberCount)
	}
}

func TestListGroupsOnlyReturnsMemberships(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	user := createTestUser(t, db, "user@test.com")
	other := createTestUser(t, db, "other@test.com")

	createTestGroup(t, db, "Mine", user)
	createTestGroup(t, db, "Theirs", other)

	w := doRequest(r, "GET", "/groups", authHeader(user), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var groups []GroupResponse
	json.Unmarshal(w.Body.Bytes(), &groups)
	if len(groups) != 1 {
		t.Fatalf("Expected 1 group, got %d", len(groups))
	}
	if groups[0].Name != "Mine" {
		t.Errorf("Expected group Mine, got %s", groups[0].Name)
	}
}

func TestGetGroupNotMember(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	user := createTestUser(t, db, "user@test.com")
	other := createTestUser(t, db, "other@test.com")
	group := createTestGroup(t, db, "Theirs", other)

	w := doRequest(r, "GET", fmt.Sprintf("/groups/%d", group.ID), authHeader(user), nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestUpdateGroupRequiresAdmin(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	member := createTestUser(t, db, "member@test.com")
	group := createTestGroup(t, db, "Team", admin)
	db.Create(&models.GroupMembership{GroupID: group.ID, UserID: member.ID, Role: models.GroupRoleMember})

	w := doRequest(r, "PUT", fmt.Sprintf("/groups/%d", group.ID), authHeader(member), UpdateGroupRequest{
		Name: "Renamed",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}

	w = doRequest(r, "PUT", fmt.Sprintf("/groups/%d", group.ID), authHeader(admin), UpdateGroupRequest{
		Name: "Renamed",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp GroupResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Name != "Renamed" {
		t.Errorf("Expected name Renamed, got %s", resp.Name)
	}
}

func TestAddMember(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	member := createTestUser(t, db, "member@test.com")
	group := createTestGroup(t, db, "Team", admin)

	w := doRequest(r, "POST", fmt.Sprintf("/groups/%d/members", group.ID), authHeader(admin), AddMemberRequest{
		Email: "member@test.com",
		Role:  "member",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var resp MemberResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.UserID != member.ID {
		t.Errorf("Expected user ID %d, got %d", member.ID, resp.UserID)
	}
	if resp.Role != "member" {
		t.Errorf("Expected role member, got %s", resp.Role)
	}
}

func TestAddMemberDuplicate(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	member := createTestUser(t, db, "member@test.com")
	group := createTestGroup(t, db, "Team", admin)
	db.Create(&models.GroupMembership{GroupID: group.ID, UserID: member.ID, Role: models.GroupRoleMember})

	w := doRequest(r, "POST", fmt.Sprintf("/groups/%d/members", group.ID), authHeader(admin), AddMemberRequest{
		Email: "member@test.com",
		Role:  "member",
	})
	if w.Code != http.StatusConflict {
		t.Errorf("Expected status 409, got %d", w.Code)
	}
}

func TestAddMemberRequiresOrgMembership(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	group := createTestGroup(t, db, "Team", admin)

	// User exists but has no membership in the request organization
	hashedPassword, _ := auth.HashPassword("password123")
	outsider := &models.User{
		Email:        "outsider@test.com",
		Name:         "Outsider",
		PasswordHash: hashedPassword,
		Active:       true,
		SystemRole:   models.SystemRoleUser,
	}
	db.Create(outsider)

	w := doRequest(r, "POST", fmt.Sprintf("/groups/%d/members", group.ID), authHeader(admin), AddMemberRequest{
		Email: "outsider@test.com",
		Role:  "member",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestUpdateMemberCannotDemoteOnlyAdmin(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	group := createTestGroup(t, db, "Team", admin)

	w := doRequest(r, "PUT", fmt.Sprintf("/groups/%d/members/%d", group.ID, admin.ID), authHeader(admin), UpdateMemberRequest{
		Role: "member",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRemoveMemberDeletesSecrets(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	member := createTestUser(t, db, "member@test.com")
	group := createTestGroup(t, db, "Team", admin)
	db.Create(&models.GroupMembership{GroupID: group.ID, UserID: member.ID, Role: models.GroupRoleMember})

	resource := &models.Resource{GroupID: group.ID, CreatedByID: admin.ID, Name: "entry"}
	db.Create(resource)
	db.Create(&models.Secret{ResourceID: resource.ID, UserID: admin.ID, Data: "admin-cipher"})
	db.Create(&models.Secret{ResourceID: resource.ID, UserID: member.ID, Data: "member-cipher"})

	w := doRequest(r, "DELETE", fmt.Sprintf("/groups/%d/members/%d", group.ID, member.ID), authHeader(admin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var count int64
	db.Model(&models.Secret{}).Where("user_id = ?", member.ID).Count(&count)
	if count != 0 {
		t.Error("Expected removed member's secrets to be deleted")
	}
	db.Model(&models.Secret{}).Where("user_id = ?", admin.ID).Count(&count)
	if count != 1 {
		t.Error("Expected remaining member's secrets to survive")
	}
}

func TestRemoveMemberSelf(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	member := createTestUser(t, db, "member@test.com")
	group := createTestGroup(t, db, "Team", admin)
	db.Create(&models.GroupMembership{GroupID: group.ID, UserID: member.ID, Role: models.GroupRoleMember})

	w := doRequest(r, "DELETE", fmt.Sprintf("/groups/%d/members/%d", group.ID, member.ID), authHeader(member), nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected self-removal to succeed, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRemoveOnlyAdmin(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	group := createTestGroup(t, db, "Team", admin)

	w := doRequest(r, "DELETE", fmt.Sprintf("/groups/%d/members/%d", group.ID, admin.ID), authHeader(admin), nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestDeleteGroupCascades(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	group := createTestGroup(t, db, "Team", admin)

	resource := &models.Resource{GroupID: group.ID, CreatedByID: admin.ID, Name: "entry"}
	db.Create(resource)
	db.Create(&models.Secret{ResourceID: resource.ID, UserID: admin.ID, Data: "cipher"})

	w := doRequest(r, "DELETE", fmt.Sprintf("/groups/%d", group.ID), authHeader(admin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var count int64
	db.Model(&models.Group{}).Where("id = ?", group.ID).Count(&count)
	if count != 0 {
		t.Error("Expected group to be deleted")
	}
	db.Model(&models.Resource{}).Where("group_id = ?", group.ID).Count(&count)
	if count != 0 {
		t.Error("Expected group's resources to be deleted")
	}
	db.Model(&models.Secret{}).Where("resource_id = ?", resource.ID).Count(&count)
	if count != 0 {
		t.Error("Expected resource secrets to be deleted")
	}
}

func TestDeleteGroupRequiresAdmin(t *testing.T) {
	db := setupTestDB(t)
	r := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com")
	member := createTestUser(t, db, "member@test.com")
	group := createTestGroup(t, db, "Team", admin)
	db.Create(&models.GroupMembership{GroupID: group.ID, UserID: member.ID, Role: models.GroupRoleMember})

	w := doRequest(r, "DELETE", fmt.Sprintf("/groups/%d", group.ID), authHeader(member), nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403, got %d", w.Code)
	}
}
