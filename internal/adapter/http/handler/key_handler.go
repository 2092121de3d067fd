package handler

import (
	"time"

	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/adapter/http/middleware"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// KeyHandler handles API key management endpoints. All routes require a
// session JWT; API keys cannot manage other API keys.
type KeyHandler struct {
	keySvc ports.APIKeyService
}

// NewKeyHandler creates a new KeyHandler.
func NewKeyHandler(keySvc ports.APIKeyService) *KeyHandler {
	return &KeyHandler{keySvc: keySvc}
}

// Create handles POST /api/v1/keys.
func (h *KeyHandler) Create(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	var req dto.CreateKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	permissions := make([]domain.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		permissions = append(permissions, domain.Permission(p))
	}

	created, err := h.keySvc.Create(c.Request.Context(), ports.CreateKeyRequest{
		UserID:      userID,
		Name:        req.Name,
		Permissions: permissions,
		TTL:         domain.KeyTTL(req.TTL),
		ClientIP:    c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreatedKeyResponse{
		KeyResponse: toKeyResponse(created.Key),
		Key:         created.Plaintext,
	})
}

// List handles GET /api/v1/keys.
func (h *KeyHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	keys, err := h.keySvc.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]dto.KeyResponse, 0, len(keys))
	for i := range keys {
		items = append(items, toKeyResponse(&keys[i]))
	}
	response.OK(c, dto.KeyListResponse{Items: items})
}

// Rollover handles POST /api/v1/keys/:id/rollover.
func (h *KeyHandler) Rollover(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid key id"))
		return
	}

	var req dto.RolloverKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	created, err := h.keySvc.Rollover(c.Request.Context(), userID, keyID, domain.KeyTTL(req.TTL), c.ClientIP())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, dto.CreatedKeyResponse{
		KeyResponse: toKeyResponse(created.Key),
		Key:         created.Plaintext,
	})
}

// Revoke handles DELETE /api/v1/keys/:id.
func (h *KeyHandler) Revoke(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, apperror.ErrAuthRequired())
		return
	}

	keyID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid key id"))
		return
	}

	if err := h.keySvc.Revoke(c.Request.Context(), userID, keyID, c.ClientIP()); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"revoked": true})
}

// toKeyResponse converts a stored key to its API shape (never the secret).
func toKeyResponse(key *domain.APIKey) dto.KeyResponse {
	permissions := make([]string, 0, len(key.Permissions))
	for _, p := range key.Permissions {
		permissions = append(permissions, string(p))
	}

	resp := dto.KeyResponse{
		ID:          key.ID.String(),
		Name:        key.Name,
		KeyID:       key.KeyID,
		Permissions: permissions,
		ExpiresAt:   key.ExpiresAt.Format(time.RFC3339),
		Revoked:     key.Revoked,
		RolledOver:  key.RolledOver,
		CreatedAt:   key.CreatedAt.Format(time.RFC3339),
	}
	if key.PredecessorID != nil {
		id := key.PredecessorID.String()
		resp.PredecessorID = &id
	}
	return resp
}
