package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/andrewbusbee/go-make-your-picks-sub003/models"
	"github.com/andrewbusbee/go-make-your-picks-sub003/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TokenService issues and resolves magic-link access tokens. Pick tokens are
// reusable until their round locks; admin login tokens are single-use.
type TokenService struct {
	DB            *gorm.DB
	Mailer        Mailer
	BaseURL       string
	AdminLoginTTL time.Duration
}

func NewTokenService(db *gorm.DB, mailer Mailer, baseURL string, adminLoginTTL time.Duration) *TokenService {
	return &TokenService{
		DB:            db,
		Mailer:        mailer,
		BaseURL:       baseURL,
		AdminLoginTTL: adminLoginTTL,
	}
}

// IssuePickToken creates a fresh pick token for one participant and round,
// invalidating any prior outstanding token for the same pair, and emails the
// link. The plaintext value is returned exactly once and never retrievable
// again; only its hash is stored. Mail delivery is best-effort and never
// rolls the token back.
func (s *TokenService) IssuePickToken(participant *models.Participant, round *models.Round, ip string) (string, error) {
	plaintext, err := utils.GenerateToken()
	if err != nil {
		return "", err
	}

	token := &models.AccessToken{
		ID:            uuid.NewString(),
		TokenHash:     utils.HashToken(plaintext),
		Kind:          models.TokenKindPick,
		ParticipantID: &participant.ID,
		Email:         participant.Email,
		RoundID:       &round.ID,
		ExpiresAt:     round.LockTime,
		CreatedIP:     ip,
	}

	// Delete-then-insert inside one transaction keeps at most one live
	// token per participant+round.
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ? AND participant_id = ? AND round_id = ?",
			models.TokenKindPick, participant.ID, round.ID).
			Delete(&models.AccessToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue pick token: %w", err)
	}

	if err := s.Mailer.Send(participant.Email, TemplatePickInvite, map[string]interface{}{
		"participant": participant.Name,
		"round":       round.Name,
		"link":        fmt.Sprintf("%s/pick/%s", s.BaseURL, plaintext),
		"locks_at":    round.LockTimeLocal().Format("Mon, 2 Jan 2006 15:04 MST"),
	}); err != nil {
		log.Printf("Pick link delivery to %s failed (token stays valid, resend available): %v", participant.Email, err)
	}

	return plaintext, nil
}

// IssueAdminLoginToken creates a single-use login token for an operator
// account with a fixed short expiry window and emails the link.
func (s *TokenService) IssueAdminLoginToken(admin *models.AdminUser, ip string) (string, error) {
	plaintext, err := utils.GenerateToken()
	if err != nil {
		return "", err
	}

	token := &models.AccessToken{
		ID:          uuid.NewString(),
		TokenHash:   utils.HashToken(plaintext),
		Kind:        models.TokenKindAdminLogin,
		AdminUserID: &admin.ID,
		Email:       admin.Email,
		ExpiresAt:   time.Now().Add(s.AdminLoginTTL),
		CreatedIP:   ip,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("kind = ? AND admin_user_id = ?",
			models.TokenKindAdminLogin, admin.ID).
			Delete(&models.AccessToken{}).Error; err != nil {
			return err
		}
		return tx.Create(token).Error
	})
	if err != nil {
		return "", fmt.Errorf("failed to issue admin login token: %w", err)
	}

	if err := s.Mailer.Send(admin.Email, TemplateAdminLogin, map[string]interface{}{
		"username": admin.Username,
		"link":     fmt.Sprintf("%s/admin/login/%s", s.BaseURL, plaintext),
	}); err != nil {
		log.Printf("Admin login link delivery to %s failed: %v", admin.Email, err)
	}

	return plaintext, nil
}

// Resolve maps a presented plaintext value back to its token record. Lookup
// is by hash with a plaintext fallback for tokens issued before hashing was
// introduced. Expired tokens are deleted on contact. Admin login tokens are
// consumed by their first successful resolution; pick tokens never are.
func (s *TokenService) Resolve(plaintext, kind string, now time.Time) (*models.AccessToken, error) {
	var token models.AccessToken
	err := s.DB.Where("token_hash = ? AND kind = ?", utils.HashToken(plaintext), kind).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Migration fallback: match raw values issued before hashing.
		// The stored value is re-checked byte for byte so a collation
		// that matches loosely can never admit a near-miss.
		err = s.DB.Where("legacy_token = ? AND kind = ?", plaintext, kind).
			First(&token).Error
		if err == nil && (token.LegacyToken == nil || !utils.ConstantTimeEquals(*token.LegacyToken, plaintext)) {
			return nil, ErrTokenNotFound
		}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("token lookup failed: %w", err)
	}

	if token.Expired(now) {
		if err := s.DB.Delete(&models.AccessToken{}, "id = ?", token.ID).Error; err != nil {
			log.Printf("Failed to delete stale token %s: %v", token.ID, err)
		}
		return nil, ErrTokenExpired
	}

	if token.Kind == models.TokenKindAdminLogin {
		if token.UsedAt != nil {
			return nil, ErrTokenConsumed
		}
		// Guard against concurrent first use: only the resolution that
		// flips used_at wins.
		res := s.DB.Model(&models.AccessToken{}).
			Where("id = ? AND used_at IS NULL", token.ID).
			Update("used_at", now)
		if res.Error != nil {
			return nil, fmt.Errorf("failed to consume token: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil, ErrTokenConsumed
		}
		token.UsedAt = &now
	}

	return &token, nil
}

// DeleteExpired removes every token past its expiry. Called periodically by
// the sweeper worker; Resolve also deletes stale tokens it touches.
func (s *TokenService) DeleteExpired(now time.Time) (int64, error) {
	res := s.DB.Where("expires_at < ?", now).Delete(&models.AccessToken{})
	return res.RowsAffected, res.Error
}
