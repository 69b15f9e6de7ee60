package rest

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/learning-analytics/internal/cache"
	"github.com/pot-code/learning-analytics/internal/completion"
	infra "github.com/pot-code/learning-analytics/internal/infrastructure"
	"github.com/pot-code/learning-analytics/internal/infrastructure/auth"
	"github.com/pot-code/learning-analytics/internal/infrastructure/driver"
	"github.com/pot-code/learning-analytics/internal/infrastructure/validate"
	"github.com/pot-code/learning-analytics/internal/interfaces/rest/handler"
	"github.com/pot-code/learning-analytics/internal/interfaces/rest/middleware"
	"github.com/pot-code/learning-analytics/internal/lesson"
	"github.com/pot-code/learning-analytics/internal/progress"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

// blacklistPrefix key prefix of revoked tokens in the kv store
const blacklistPrefix = "token_blacklist:"

// Serve create http transport server
func Serve(
	conn driver.ITransactionalDB,
	kv *cache.Client,
	option *infra.AppConfig,
	LessonUseCase lesson.LessonUseCase,
	ProgressUseCase progress.ProgressUseCase,
	RateQuerier completion.RateQuerier,
	logger *zap.Logger,
) {
	app := NewApp(conn, kv, option, LessonUseCase, ProgressUseCase, RateQuerier, logger)

	printRoutes(app, logger)
	if err := app.Start(fmt.Sprintf("%s:%d", option.Host, option.Port)); err != nil && err != http.ErrServerClosed {
		log.Fatal(err)
	}
}

// NewApp build the echo application with every route registered
func NewApp(
	conn driver.ITransactionalDB,
	kv *cache.Client,
	option *infra.AppConfig,
	LessonUseCase lesson.LessonUseCase,
	ProgressUseCase progress.ProgressUseCase,
	RateQuerier completion.RateQuerier,
	logger *zap.Logger,
) *echo.Echo {
	var (
		app       = echo.New()
		validator = validate.NewValidator()
		jwtUtil   = auth.NewJWTUtil(option.Security.JWTMethod,
			option.Security.JWTSecret,
			option.Security.TokenName,
			option.SessionTimeout)
		jwtMiddleware = middleware.VerifyToken(jwtUtil, &middleware.ValidateTokenOption{
			InBlackList: func(ctx context.Context, token string) bool {
				return kv.Exists(ctx, blacklistPrefix+token)
			},
		})
		refreshMiddleware = middleware.RefreshToken(jwtUtil)
	)
	app.HideBanner = true

	app.Use(middleware.Metrics())
	registerLivenessProbe(app, conn, kv)
	app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}
	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			uri := e.Request().RequestURI
			return strings.HasPrefix(uri, "/healthz") || strings.HasPrefix(uri, "/metrics")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, err error) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(http.StatusInternalServerError,
					handler.NewRESTStandardError(http.StatusInternalServerError, err.Error()).SetTraceID(traceID),
				)
				logger.Error(err.Error(), zap.String("trace.id", traceID))
			},
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
	}))

	var (
		LessonHandler    = handler.NewLessonHandler(LessonUseCase, RateQuerier, jwtUtil, validator)
		ProgressHandler  = handler.NewProgressHandler(ProgressUseCase, jwtUtil, validator)
		DashboardHandler = handler.NewDashboardHandler(RateQuerier, jwtUtil)
	)

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{echo_middleware.RequestID(), middleware.SetTraceLogger(logger)},
			groups: []*apiGroup{
				{
					prefix:      "/lesson",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
					routes: []*route{
						{http.MethodGet, "", LessonHandler.HandleListLessons, nil},
						{http.MethodGet, "/progress", LessonHandler.HandleGetLessonProgress, nil},
						{http.MethodPost, "/completion-rates", LessonHandler.HandleBulkLessonRates, nil},
						{http.MethodPost, "/interact", ProgressHandler.HandleInteract, nil},
						{http.MethodGet, "/:id/completion-rate", LessonHandler.HandleGetLessonRate, nil},
						{http.MethodGet, "/:id/progress", ProgressHandler.HandleGetProgress, nil},
						{http.MethodPut, "/:id/progress", ProgressHandler.HandleUpdateProgress, nil},
					},
				},
				{
					prefix:      "/dashboard",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
					routes: []*route{
						{http.MethodGet, "/stats", DashboardHandler.HandleGetStats, nil},
					},
				},
			},
		})
	return app
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			logger.Info("Registered route", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
}

// registerLivenessProbe the database is required, the cache is reported but never fails the probe
func registerLivenessProbe(app *echo.Echo, db driver.ITransactionalDB, kv *cache.Client) {
	app.GET("/healthz", func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status := echo.Map{"database": "up", "cache": "disabled"}
		if kv.Enabled() {
			if err := kv.Ping(ctx); err != nil {
				status["cache"] = "down"
			} else {
				status["cache"] = "up"
			}
		}
		if err := db.Ping(ctx); err != nil {
			status["database"] = "down"
			return c.JSON(http.StatusServiceUnavailable, status)
		}
		return c.JSON(http.StatusOK, status)
	})
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
