package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/danielgtaylor/huma/v2"
	"github.com/gdg-garage/event-checkin/internal/config"
	"github.com/gdg-garage/event-checkin/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

const (
	DiscordAuthorizeEndpoint = "https://discord.com/api/oauth2/authorize"
	DiscordTokenEndpoint     = "https://discord.com/api/oauth2/token"
	DiscordUserAPI           = "https://discord.com/api/users/@me"
	DiscordUserGuildsAPI     = "https://discord.com/api/users/@me/guilds"

	TokenDuration = 24 * time.Hour

	cookieName      = "auth_token"
	stateCookieName = "oauth_state"
	localDiscordID  = "local"
)

// MemberFetcher is the slice of *discordgo.Session used for the organizer
// role check.
type MemberFetcher interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
}

type AuthHandler struct {
	oauthConfig *oauth2.Config
	db          *gorm.DB
	cfg         *config.Config
	members     MemberFetcher
	logger      *slog.Logger

	localMu     sync.Mutex
	localUserID uint
}

// NewAuthHandler builds the organizer auth handler. members may be nil, in
// which case the organizer role is not checked.
func NewAuthHandler(cfg *config.Config, db *gorm.DB, members MemberFetcher, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthHandler{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURL,
			Scopes:       []string{"identify", "email", "guilds"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  DiscordAuthorizeEndpoint,
				TokenURL: DiscordTokenEndpoint,
			},
		},
		db:      db,
		cfg:     cfg,
		members: members,
		logger:  logger,
	}
}

func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		http.Error(w, "Failed to start login", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Expires:  time.Now().Add(10 * time.Minute),
		HttpOnly: true,
		Path:     "/auth",
		SameSite: http.SameSiteLaxMode,
	})

	url := h.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

type discordUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Avatar   string `json:"avatar"`
}

func (h *AuthHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := r.Cookie(stateCookieName)
	if err != nil || state.Value == "" || state.Value != r.URL.Query().Get("state") {
		http.Error(w, "Invalid OAuth state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Code not found", http.StatusBadRequest)
		return
	}

	token, err := h.oauthConfig.Exchange(ctx, code)
	if err != nil {
		h.logger.WarnContext(ctx, "oauth token exchange failed", slog.Any("error", err))
		http.Error(w, "Failed to exchange token", http.StatusInternalServerError)
		return
	}

	client := h.oauthConfig.Client(ctx, token)

	if h.cfg.DiscordGuildID != "" {
		isMember, err := h.isGuildMember(client)
		if err != nil {
			h.logger.WarnContext(ctx, "failed to get user guilds", slog.Any("error", err))
			http.Error(w, "Failed to get user guilds", http.StatusInternalServerError)
			return
		}
		if !isMember {
			http.Error(w, "Access denied: You are not a member of the required guild.", http.StatusForbidden)
			return
		}
	}

	var du discordUser
	if err := getJSON(client, DiscordUserAPI, &du); err != nil {
		h.logger.WarnContext(ctx, "failed to get user info", slog.Any("error", err))
		http.Error(w, "Failed to get user info", http.StatusInternalServerError)
		return
	}

	if ok, err := h.hasOrganizerRole(du.ID); err != nil {
		h.logger.WarnContext(ctx, "organizer role check failed", slog.String("discord_id", du.ID), slog.Any("error", err))
		http.Error(w, "Failed to verify organizer role", http.StatusInternalServerError)
		return
	} else if !ok {
		http.Error(w, "Access denied: You are not an event organizer.", http.StatusForbidden)
		return
	}

	user, err := h.upsertUser(ctx, du)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to save user", slog.Any("error", err))
		http.Error(w, "Failed to save user", http.StatusInternalServerError)
		return
	}

	jwtToken, err := h.GenerateToken(user.ID)
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, h.sessionCookie(jwtToken))
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Value: "", Path: "/auth", MaxAge: -1})

	h.logger.InfoContext(ctx, "organizer logged in", slog.Uint64("user_id", uint64(user.ID)), slog.String("username", user.Username))
	fmt.Fprintf(w, "Welcome %s! You are logged in.", user.Username)
}

func (h *AuthHandler) isGuildMember(client *http.Client) (bool, error) {
	var guilds []struct {
		ID string `json:"id"`
	}
	if err := getJSON(client, DiscordUserGuildsAPI, &guilds); err != nil {
		return false, err
	}
	for _, g := range guilds {
		if g.ID == h.cfg.DiscordGuildID {
			return true, nil
		}
	}
	return false, nil
}

// hasOrganizerRole reports whether the Discord user holds the configured
// organizer role in the guild. Without a role or a bot session every guild
// member is an organizer.
func (h *AuthHandler) hasOrganizerRole(discordID string) (bool, error) {
	if h.cfg.DiscordOrganizerRoleID == "" || h.members == nil || h.cfg.DiscordGuildID == "" {
		return true, nil
	}
	member, err := h.members.GuildMember(h.cfg.DiscordGuildID, discordID)
	if err != nil {
		return false, err
	}
	return slices.Contains(member.Roles, h.cfg.DiscordOrganizerRoleID), nil
}

func (h *AuthHandler) upsertUser(ctx context.Context, du discordUser) (*models.User, error) {
	var user models.User
	db := h.db.WithContext(ctx)
	if err := db.FirstOrInit(&user, models.User{DiscordID: du.ID}).Error; err != nil {
		return nil, err
	}
	now := time.Now()
	user.Username = du.Username
	user.Email = du.Email
	user.Avatar = du.Avatar
	user.LastLoginAt = &now

	if err := db.Save(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (h *AuthHandler) GenerateToken(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

func (h *AuthHandler) sessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName,
		Value:    token,
		Expires:  time.Now().Add(TokenDuration),
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	}
}

// localUser returns the organizer injected when authentication is disabled,
// creating it on first use.
func (h *AuthHandler) localUser(ctx context.Context) (uint, error) {
	h.localMu.Lock()
	defer h.localMu.Unlock()
	if h.localUserID != 0 {
		return h.localUserID, nil
	}

	user := models.User{DiscordID: localDiscordID, Username: "local organizer"}
	if err := h.db.WithContext(ctx).Where(models.User{DiscordID: localDiscordID}).FirstOrCreate(&user).Error; err != nil {
		return 0, err
	}
	h.localUserID = user.ID
	return user.ID, nil
}

type UserResponse struct {
	ID          uint       `json:"id"`
	DiscordID   string     `json:"discord_id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Avatar      string     `json:"avatar"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type MeOutput struct {
	Body UserResponse
}

func (h *AuthHandler) HandleMe(ctx context.Context, input *struct{}) (*MeOutput, error) {
	userID, err := RequireUser(ctx)
	if err != nil {
		return nil, err
	}

	var user models.User
	if err := h.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error401Unauthorized("User not found")
		}
		return nil, huma.Error500InternalServerError("Database error")
	}

	return &MeOutput{
		Body: UserResponse{
			ID:          user.ID,
			DiscordID:   user.DiscordID,
			Username:    user.Username,
			Email:       user.Email,
			Avatar:      user.Avatar,
			LastLoginAt: user.LastLoginAt,
		},
	}, nil
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func randomState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
