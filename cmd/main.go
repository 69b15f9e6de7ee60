package main

import (
	"context"
	"log"
	"time"

	"github.com/pot-code/learning-analytics/internal/cache"
	"github.com/pot-code/learning-analytics/internal/completion"
	infra "github.com/pot-code/learning-analytics/internal/infrastructure"
	"github.com/pot-code/learning-analytics/internal/infrastructure/driver"
	"github.com/pot-code/learning-analytics/internal/infrastructure/logging"
	"github.com/pot-code/learning-analytics/internal/infrastructure/uuid"
	"github.com/pot-code/learning-analytics/internal/interfaces/rest"
	"github.com/pot-code/learning-analytics/internal/lesson"
	"github.com/pot-code/learning-analytics/internal/progress"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	dbConn, err := driver.GetDBConnection(&driver.DBConfig{
		User:     option.Database.User,
		Password: option.Database.Password,
		MaxConn:  option.Database.MaxConn,
		Protocol: option.Database.Protocol,
		Driver:   option.Database.Driver,
		Host:     option.Database.Host,
		Port:     option.Database.Port,
		Query:    option.Database.Query,
		Schema:   option.Database.Schema,
	})
	if err != nil {
		log.Fatalf("Failed to create DB connection: %s\n", err)
	}
	logger.Debug("Create DB connection instance", zap.String("db.driver", option.Database.Driver),
		zap.String("db.schema", option.Database.Schema),
		zap.String("db.host", option.Database.Host),
	)

	kvStore := newKVStore(option, logger)
	if kvStore != nil {
		defer kvStore.Close()
	}

	CacheClient := cache.NewClient(kvStore, &cache.ClientOption{Timeout: option.KVStore.Timeout})
	CacheService := cache.NewService(CacheClient, option.Cache.RateTTL)

	ProgressRepo := progress.NewProgressRepository(dbConn)
	RateEngine := completion.NewEngine(ProgressRepo, CacheService, &completion.EngineOption{TTL: option.Cache.RateTTL})

	UUIDGenerator := uuid.NewNanoIDGenerator(option.Security.IDLength)
	ProgressUseCase := progress.NewProgressUseCase(ProgressRepo, RateEngine, UUIDGenerator)

	LessonRepo := lesson.NewLessonRepository(dbConn)
	LessonUseCase := lesson.NewLessonUseCase(LessonRepo, RateEngine)

	rest.Serve(dbConn, CacheClient, option, LessonUseCase, ProgressUseCase, RateEngine, logger)
}

// newKVStore returns nil when caching is disabled, the service keeps working against the database alone
func newKVStore(option *infra.AppConfig, logger *zap.Logger) driver.KeyValueDB {
	switch option.KVStore.Driver {
	case infra.KVDriverRedis:
		client := driver.NewRedisClient(&driver.RedisConfig{
			Host:     option.KVStore.Host,
			Port:     option.KVStore.Port,
			Password: option.KVStore.Password,
			DB:       option.KVStore.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			logger.Warn("Redis is unreachable, cache operations will fall through to the database",
				zap.String("kv.host", option.KVStore.Host), zap.Error(err))
		}
		return client
	case infra.KVDriverMemory:
		return driver.NewMemoryKV(option.KVStore.MemorySize, option.Cache.RateTTL)
	default:
		logger.Info("Cache is disabled")
		return nil
	}
}
