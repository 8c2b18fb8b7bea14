// Package http serves the local control API the UI drives calls through.
package http

import (
	"context"

	"github.com/dkeye/Dial/internal/app"
	"github.com/dkeye/Dial/internal/app/orch"
	"github.com/dkeye/Dial/internal/config"
	"github.com/dkeye/Dial/internal/core"
	"github.com/dkeye/Dial/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// CallController is the orchestrator surface the API exposes.
type CallController interface {
	InitiateCall(ctx context.Context, target domain.UserID, t domain.CallType) error
	AnswerCall(ctx context.Context) error
	RejectCall(ctx context.Context) error
	EndCall(ctx context.Context, reason domain.EndReason) error
	ToggleMute(ctx context.Context) error
	ToggleVideo(ctx context.Context) error
	ToggleSpeaker(ctx context.Context) error

	Snapshot() orch.Snapshot
	Capability() core.Capability
	Self() domain.UserRef
	Subscribe(fn func(orch.Update)) (cancel func())
}

// Directory lists who can be called.
type Directory interface {
	List() []domain.UserRef
}

const clientTokenKey = "client_token"

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware gives every UI client a stable token kept in the
// session cookie. The state stream uses it to tell viewers apart.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get("ct").(string)
		if token == "" {
			token = genClientToken()
			sess.Set("ct", token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
			}
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, calls CallController, users Directory, policy app.Policy) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	secret := cfg.Secret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn().Str("module", "adapters.http").Msg("no cookie secret configured, sessions will not survive restarts")
	}
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("DialSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	h := &handlers{ctx: ctx, calls: calls, users: users, policy: policy}

	api := r.Group("/api")
	api.GET("/me", h.me)
	api.GET("/users", h.listUsers)
	api.GET("/capability", h.capability)
	api.GET("/call", h.snapshot)
	api.POST("/call", h.initiate)
	api.POST("/call/answer", h.intent(calls.AnswerCall))
	api.POST("/call/reject", h.intent(calls.RejectCall))
	api.POST("/call/end", h.intent(func(ctx context.Context) error {
		return calls.EndCall(ctx, domain.EndReasonUserEnded)
	}))
	api.POST("/call/mute", h.intent(calls.ToggleMute))
	api.POST("/call/video", h.intent(calls.ToggleVideo))
	api.POST("/call/speaker", h.intent(calls.ToggleSpeaker))
	api.GET("/ws/state", h.stream)

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")
	return r
}
