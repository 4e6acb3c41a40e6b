package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dianping/internal/cache"
	"dianping/internal/config"
	"dianping/internal/model"
	"dianping/internal/router"
	"dianping/internal/seckill"
	"dianping/internal/service"
	"dianping/internal/store"
	rediskey "dianping/pkg/redis"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}

	// 1. 连接 SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	if err := db.AutoMigrate(
		&model.Shop{}, &model.ShopType{},
		&model.SeckillVoucher{}, &model.VoucherOrder{},
	); err != nil {
		log.Fatal("db migrate", zap.Error(err))
	}

	// 2. 连接 Redis
	rdb := rd.NewClient(&rd.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("redis ping", zap.Error(err))
	}

	// 3. 装配服务与秒杀流水线
	cacheClient := cache.NewClient(rdb, log)
	shopSvc := service.NewShopService(cacheClient, store.NewShops(db))
	shopTypeSvc := service.NewShopTypeService(rdb, store.NewShopTypes(db))
	voucherSvc := service.NewVoucherService(rdb, store.NewSeckillVouchers(db))

	pipeline := seckill.NewPipeline(rdb, rediskey.NewIDWorker(rdb),
		store.NewSeckillVouchers(db), store.NewVoucherOrders(db),
		cfg.OrderQueueSize, log)
	pipeline.Start()

	r := gin.Default()
	router.Setup(r, router.Deps{
		Shops:     shopSvc,
		ShopTypes: shopTypeSvc,
		Vouchers:  voucherSvc,
		Pipeline:  pipeline,
		Redis:     rdb,
		Cfg:       cfg,
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http serve", zap.Error(err))
		}
	}()
	log.Info("server started", zap.String("addr", cfg.HTTPAddr))

	// 4. 优雅停机：先停 HTTP 再排空落库队列
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("http shutdown", zap.Error(err))
	}
	if err := pipeline.Stop(ctx); err != nil {
		log.Error("pipeline drain incomplete, pending orders lost", zap.Error(err))
	}
	log.Info("bye")
}
