package middleware

import (
	"github.com/gin-gonic/gin"

	"greendrake/chat/internal/apperr"
	"greendrake/chat/internal/auth"
	"greendrake/chat/internal/utils"
)

const (
	// ContextKeyUserID holds the key for the caller's utils.SixID in Gin context.
	ContextKeyUserID = "userID"
)

// AbortWithError writes the standard error body and aborts the chain.
func AbortWithError(c *gin.Context, err error) {
	c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{
		"error": apperr.PublicMessage(err),
		"code":  apperr.CodeOf(err),
	})
}

// AuthMiddleware resolves the caller through the gateway and rejects anonymous requests.
func AuthMiddleware(gw *auth.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := gw.Resolve(c.Request)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(ContextKeyUserID, userID)
		c.Next()
	}
}

// UserID returns the caller set by AuthMiddleware.
func UserID(c *gin.Context) (utils.SixID, bool) {
	v, ok := c.Get(ContextKeyUserID)
	if !ok {
		return utils.SixID{}, false
	}
	id, ok := v.(utils.SixID)
	return id, ok && !id.IsZero()
}
