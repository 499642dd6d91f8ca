package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/config"
	"github.com/iliyamo/medconcierge/internal/middleware"
	"github.com/iliyamo/medconcierge/internal/model"
	"github.com/iliyamo/medconcierge/internal/repository"
	"github.com/iliyamo/medconcierge/internal/service"
	"github.com/iliyamo/medconcierge/internal/utils"
)

// AuthStore is the part of *repository.Queries used by the auth endpoints.
type AuthStore interface {
	GetUserByPhone(ctx context.Context, phone string) (model.User, error)
	GetUserByID(ctx context.Context, id uint64) (model.User, error)
	CreateUser(ctx context.Context, u model.User) (uint64, error)
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// PasswordRecovery is implemented by *service.PasswordService.
type PasswordRecovery interface {
	RequestReset(ctx context.Context, phone string) error
	Reset(ctx context.Context, phone, code, newPassword string) error
}

type AuthHandler struct {
	Cfg       config.Config
	Store     AuthStore
	Passwords PasswordRecovery
	Log       *zap.Logger
}

func NewAuthHandler(cfg config.Config, store AuthStore, pw PasswordRecovery, log *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Store: store, Passwords: pw, Log: log.Named("auth")}
}

type registerReq struct {
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone" validate:"required,intlphone"`
	Password  string `json:"password" validate:"required,min=8,bcryptmax"`
}

type loginReq struct {
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type forgotReq struct {
	Phone string `json:"phone"`
}

type resetReq struct {
	Phone    string `json:"phone"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

type tokenPart struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

type userPart struct {
	ID        uint64 `json:"id"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

type authResp struct {
	User    userPart  `json:"user"`
	Access  tokenPart `json:"access"`
	Refresh tokenPart `json:"refresh"`
}

func sessionOf(u model.User) utils.Session {
	return utils.Session{UserID: u.ID, Role: string(u.Role), Phone: u.Phone, Email: u.Email, Name: u.FullName()}
}

// issue signs an access token and stores a fresh refresh token for u.
func (h *AuthHandler) issue(ctx context.Context, u model.User) (authResp, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, sessionOf(u), h.Cfg.AccessTTLMin)
	if err != nil {
		return authResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return authResp{}, err
	}
	if err := h.Store.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return authResp{}, err
	}
	return authResp{
		User:    userPart{ID: u.ID, Email: u.Email, Phone: u.Phone, FirstName: u.FirstName, LastName: u.LastName, Role: string(u.Role)},
		Access:  tokenPart{Token: access.Token, Expires: access.Exp},
		Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

// Register creates a CLIENT account and signs it in.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.FirstName = service.StripTags(req.FirstName)
	req.LastName = service.StripTags(req.LastName)
	req.Email = service.NormalizeEmail(req.Email)
	req.Phone = service.NormalizePhone(req.Phone)
	if err := service.Validate(req); err != nil {
		return respondError(c, h.Log, err)
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	hash, err := utils.HashPassword(req.Password, h.Cfg.BcryptCost)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	u := model.User{
		Email: req.Email, Phone: req.Phone, PasswordHash: hash,
		FirstName: req.FirstName, LastName: req.LastName, Role: model.RoleClient, IsActive: true,
	}
	u.ID, err = h.Store.CreateUser(ctx, u)
	if errors.Is(err, repository.ErrDuplicate) {
		return respondError(c, h.Log, service.ErrUserExists)
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies phone and password.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	phone := service.NormalizePhone(req.Phone)
	if phone == "" || req.Password == "" {
		return badRequest(c, "phone and password required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.Store.GetUserByPhone(ctx, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}

	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	h.Log.Info("login", zap.Uint64("user_id", u.ID), zap.String("role", string(u.Role)))
	return c.JSON(http.StatusOK, resp)
}

func bindRefresh(c echo.Context) (string, bool) {
	var req refreshReq
	if err := c.Bind(&req); err != nil {
		return "", false
	}
	raw := strings.TrimSpace(req.RefreshToken)
	return raw, raw != ""
}

// loadRefreshUser resolves an active user from a refresh token.
func (h *AuthHandler) loadRefreshUser(ctx context.Context, hash string) (model.User, error) {
	userID, err := h.Store.ValidateRefresh(ctx, hash)
	if err != nil {
		return model.User{}, err
	}
	u, err := h.Store.GetUserByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}
	if !u.IsActive {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

// Refresh rotates a refresh token and returns a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw, ok := bindRefresh(c)
	if !ok {
		return badRequest(c, "refresh_token required")
	}
	hash := utils.HashRefreshRaw(raw)

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.loadRefreshUser(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if err := h.Store.RevokeByHash(ctx, hash); err != nil {
		return respondError(c, h.Log, err)
	}
	resp, err := h.issue(ctx, u)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token and keeps the refresh token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
	raw, ok := bindRefresh(c)
	if !ok {
		return badRequest(c, "refresh_token required")
	}

	ctx, cancel := withTimeout(c)
	defer cancel()

	u, err := h.loadRefreshUser(ctx, utils.HashRefreshRaw(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return respondError(c, h.Log, err)
	}
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, sessionOf(u), h.Cfg.AccessTTLMin)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"access": tokenPart{Token: access.Token, Expires: access.Exp}})
}

// Logout revokes the given refresh token, or every session of the caller
// when the body carries none.
func (h *AuthHandler) Logout(c echo.Context) error {
	a, ok := actor(c)
	if !ok {
		return unauthorized(c)
	}
	raw, _ := bindRefresh(c)

	ctx, cancel := withTimeout(c)
	defer cancel()

	if raw == "" {
		if err := h.Store.RevokeAllForUser(ctx, a.UserID); err != nil {
			return respondError(c, h.Log, err)
		}
		return c.NoContent(http.StatusNoContent)
	}
	hash := utils.HashRefreshRaw(raw)
	owner, err := h.Store.ValidateRefresh(ctx, hash)
	if err != nil || owner != a.UserID {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if err := h.Store.RevokeByHash(ctx, hash); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me echoes the session.
func (h *AuthHandler) Me(c echo.Context) error {
	s, ok := middleware.SessionFrom(c)
	if !ok {
		return unauthorized(c)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"id":    s.UserID,
		"role":  s.Role,
		"phone": s.Phone,
		"email": s.Email,
		"name":  s.Name,
	})
}

// ForgotPassword always answers {success:true} so callers cannot tell
// whether a phone is registered.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req forgotReq
	if err := c.Bind(&req); err == nil {
		ctx, cancel := withTimeout(c)
		defer cancel()
		if err := h.Passwords.RequestReset(ctx, req.Phone); err != nil {
			var verr *service.ValidationError
			if !errors.As(err, &verr) {
				h.Log.Error("password reset request failed", zap.Error(err))
			}
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// ResetPassword consumes a code sent by ForgotPassword.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Passwords.Reset(ctx, req.Phone, strings.TrimSpace(req.Code), req.Password); err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
