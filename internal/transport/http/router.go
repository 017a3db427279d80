package http

import (
	"net/http"
	"net/http/pprof"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"quizroom-service/internal/app"
)

// RouterOptions toggles optional surfaces of the HTTP server.
type RouterOptions struct {
	// Profile registers net/http/pprof handlers under /debug/pprof.
	Profile bool
	// Verbose enables gin's per-request logger.
	Verbose bool
}

// NewRouter wires REST, WebSocket and health endpoints onto one gin engine.
func NewRouter(service *app.Service, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if opts.Verbose {
		router.Use(gin.Logger())
	}

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(config))

	rest := NewRESTHandler(service)
	ws := NewWSHandler(service)

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapF(ws.ServeWS))

	api := router.Group("/api/v1")
	{
		api.POST("/rooms", rest.CreateRoom)
		api.GET("/rooms", rest.ListRooms)
		api.GET("/rooms/:id", rest.GetRoom)
		api.POST("/rooms/:id/join", rest.JoinRoom)
		api.POST("/rooms/:id/start", rest.StartQuiz)
		api.POST("/rooms/:id/answers", rest.SubmitAnswer)
		api.POST("/rooms/:id/next", rest.NextQuestion)
		api.GET("/rooms/:id/answered", rest.AllAnswered)
		api.GET("/rooms/:id/leaderboard", rest.Leaderboard)
		api.GET("/rooms/:id/results", rest.Results)
		api.GET("/rooms/:id/qr", rest.QRCode)
		api.POST("/questions/validate", rest.ValidateQuestions)
	}

	if opts.Profile {
		registerProfileHandlers(router)
	}
	return router
}

func registerProfileHandlers(router *gin.Engine) {
	debug := router.Group("/debug/pprof")
	debug.GET("/", gin.WrapF(pprof.Index))
	debug.GET("/allocs", gin.WrapH(pprof.Handler("allocs")))
	debug.GET("/block", gin.WrapH(pprof.Handler("block")))
	debug.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	debug.GET("/heap", gin.WrapH(pprof.Handler("heap")))
	debug.GET("/mutex", gin.WrapH(pprof.Handler("mutex")))
	debug.GET("/threadcreate", gin.WrapH(pprof.Handler("threadcreate")))
	debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
	debug.GET("/profile", gin.WrapF(pprof.Profile))
	debug.GET("/symbol", gin.WrapF(pprof.Symbol))
	debug.GET("/trace", gin.WrapF(pprof.Trace))
}
