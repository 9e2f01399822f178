package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"greendrake/chat/internal/api/middleware"
	"greendrake/chat/internal/apperr"
	"greendrake/chat/internal/logging"
	"greendrake/chat/internal/utils"
)

// respondError maps err onto the status and body every route uses. Internal
// causes are logged and never sent.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	if apperr.CodeOf(err) == apperr.CodeInternal {
		logging.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	middleware.AbortWithError(c, err)
}

// pathID parses a SixID route parameter.
func pathID(c *gin.Context, name string) (utils.SixID, error) {
	id, err := utils.ParseSixID(c.Param(name))
	if err != nil {
		return utils.SixID{}, apperr.InvalidArg("invalid " + name)
	}
	return id, nil
}

// queryInt reads an optional positive integer; anything else yields 0.
func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil || v < 0 {
		return 0
	}
	return v
}

// callerID returns the authenticated user or writes a 401.
func callerID(c *gin.Context) (utils.SixID, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		respondError(c, apperr.Unauthorized("authentication required"))
	}
	return id, ok
}
