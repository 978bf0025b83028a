package services

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/config"
	"github.com/andrewbusbee/go-make-your-picks-sub003/models"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminService authenticates operators. Two paths issue the same JWT
// session: password login and an emailed single-use login link.
type AdminService struct {
	DB        *gorm.DB
	Tokens    *TokenService
	JWTSecret string
	ExpiresIn time.Duration
}

func NewAdminService(db *gorm.DB, tokens *TokenService, cfg *config.Config) *AdminService {
	return &AdminService{
		DB:        db,
		Tokens:    tokens,
		JWTSecret: cfg.JWT.Secret,
		ExpiresIn: time.Duration(cfg.JWT.ExpiresIn) * time.Second,
	}
}

// Login handles POST /admin/login (password flow).
func (s *AdminService) Login(c *fiber.Ctx) error {
	type Req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}

	var admin models.AdminUser
	if err := s.DB.Where("username = ?", req.Username).First(&admin).Error; err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	}
	if err := bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(req.Password)); err != nil {
		return c.Status(401).JSON(fiber.Map{"error": "invalid credentials"})
	}

	return s.issueSession(c, &admin)
}

// RequestLoginLink handles POST /admin/login-link. The response is the same
// whether or not the email belongs to an account, so the endpoint cannot be
// used to enumerate operators.
func (s *AdminService) RequestLoginLink(c *fiber.Ctx) error {
	type Req struct {
		Email string `json:"email"`
	}
	var req Req
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid JSON"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" {
		return c.Status(400).JSON(fiber.Map{"error": "email is required"})
	}

	var admin models.AdminUser
	err := s.DB.Where("email = ?", req.Email).First(&admin).Error
	if err == nil {
		if _, err := s.Tokens.IssueAdminLoginToken(&admin, c.IP()); err != nil {
			log.Printf("ERROR issuing admin login token for %s: %v", admin.ID, err)
		}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("ERROR looking up admin by email: %v", err)
	}

	return c.JSON(fiber.Map{"message": "if that email has an account, a login link is on its way"})
}

// LoginWithToken handles POST /admin/login/:token (magic-link flow). The
// token is consumed on first use; replays get the generic invalid message.
func (s *AdminService) LoginWithToken(c *fiber.Ctx) error {
	token, err := s.Tokens.Resolve(c.Params("token"), models.TokenKindAdminLogin, time.Now().UTC())
	if errors.Is(err, ErrTokenExpired) {
		return c.Status(401).JSON(fiber.Map{"error": "this link is no longer valid", "code": "expired"})
	}
	if errors.Is(err, ErrTokenNotFound) || errors.Is(err, ErrTokenConsumed) {
		return c.Status(401).JSON(fiber.Map{"error": "this link is no longer valid", "code": "invalid"})
	}
	if err != nil {
		log.Printf("ERROR resolving admin login token: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "login failed"})
	}

	var admin models.AdminUser
	if err := s.DB.First(&admin, "id = ?", *token.AdminUserID).Error; err != nil {
		log.Printf("ERROR loading admin %s for login token: %v", *token.AdminUserID, err)
		return c.Status(500).JSON(fiber.Map{"error": "login failed"})
	}

	return s.issueSession(c, &admin)
}

func (s *AdminService) issueSession(c *fiber.Ctx, admin *models.AdminUser) error {
	claims := jwt.MapClaims{
		"sub":   admin.ID,
		"email": admin.Email,
		"exp":   time.Now().Add(s.ExpiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.JWTSecret))
	if err != nil {
		log.Printf("ERROR signing session token: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "login failed"})
	}

	return c.JSON(fiber.Map{
		"token": signed,
		"admin": fiber.Map{
			"id":       admin.ID,
			"username": admin.Username,
			"email":    admin.Email,
		},
	})
}

// SeedAdmin creates the bootstrap operator account from config when no
// account with that username exists yet.
func SeedAdmin(db *gorm.DB, cfg *config.Config) error {
	if cfg.Admin.Username == "" || cfg.Admin.Password == "" {
		log.Println("⚠️  No admin credentials configured, skipping admin seed")
		return nil
	}

	var count int64
	if err := db.Model(&models.AdminUser{}).
		Where("username = ?", cfg.Admin.Username).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cfg.Admin.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := &models.AdminUser{
		ID:           uuid.NewString(),
		Username:     cfg.Admin.Username,
		Email:        strings.ToLower(cfg.Admin.Email),
		PasswordHash: string(hash),
	}
	if err := db.Create(admin).Error; err != nil {
		return err
	}
	log.Printf("👤 Seeded admin account %q", admin.Username)
	return nil
}
