package server

import (
	"github.com/gin-gonic/gin"
	obscontext "github.com/smallbiznis/kost/internal/observability/context"
)

const defaultActorID = "admin"

// actorID is the admin who decides a payment, taken from X-Actor-ID by the
// request logging middleware.
func actorID(c *gin.Context) string {
	if _, id := obscontext.ActorFromContext(c.Request.Context()); id != "" {
		return id
	}
	return defaultActorID
}
