package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/middleware"
	"github.com/ahmed-matloob-prog/skill-lab-web-sub000/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorFromContext(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		return models.Actor{}, false
	}
	return claims.Actor(), true
}
