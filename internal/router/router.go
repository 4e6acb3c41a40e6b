package router

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"

	"dianping/internal/config"
	"dianping/internal/middleware"
	"dianping/internal/model"
	"dianping/internal/seckill"
	"dianping/internal/service"
	rediskey "dianping/pkg/redis"
)

// Deps 路由依赖的全部服务。
type Deps struct {
	Shops     *service.ShopService
	ShopTypes *service.ShopTypeService
	Vouchers  *service.VoucherService
	Pipeline  *seckill.Pipeline
	Redis     *rd.Client
	Cfg       config.Config
}

// Setup 注册全部 HTTP 路由。
func Setup(r *gin.Engine, d Deps) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Shops
	r.GET("/api/shops/:id", queryShop(d.Shops))
	r.PUT("/api/shops", adminOnly(d.Cfg.AdminToken), updateShop(d.Shops))
	r.POST("/api/shops/:id/warmup", adminOnly(d.Cfg.AdminToken), warmUpShop(d.Shops))
	r.GET("/api/shop-types", listShopTypes(d.ShopTypes))

	// Vouchers / seckill
	r.POST("/api/vouchers", adminOnly(d.Cfg.AdminToken), createVoucher(d.Vouchers))
	r.POST("/api/vouchers/:id/preload", adminOnly(d.Cfg.AdminToken), preloadVoucher(d.Vouchers))
	r.GET("/api/vouchers/:id/stock", liveStock(d.Vouchers))
	r.POST("/api/vouchers/:id/seckill",
		middleware.RedisRateLimit(d.Redis, d.Cfg.SeckillRateLimit, d.Cfg.SeckillRateWindow),
		seckillVoucher(d.Pipeline))
}

// adminOnly 管理接口的简单 token 保护（demo 级别）。
func adminOnly(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}
		c.Next()
	}
}

func parseUintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": name + " 无效"})
		return 0, false
	}
	return uint(v), true
}

// queryShop 查询店铺详情，读路径走互斥重建的旁路缓存。
func queryShop(svc *service.ShopService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "id")
		if !ok {
			return
		}
		shop, err := svc.QueryByID(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if shop == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "店铺不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": shop})
	}
}

// updateShop 更新店铺并删除缓存，保证下次读取重建。
func updateShop(svc *service.ShopService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var shop model.Shop
		if err := c.ShouldBindJSON(&shop); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if err := svc.Update(c.Request.Context(), &shop); err != nil {
			if errors.Is(err, service.ErrMissingShopID) {
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "店铺ID必填"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "更新店铺数据成功"})
	}
}

// warmUpShop 以逻辑过期方式把店铺预热进缓存。
func warmUpShop(svc *service.ShopService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "id")
		if !ok {
			return
		}
		var req struct {
			TTLSeconds int64 `json:"ttl_seconds"`
		}
		// body 可省略，省略时用默认 TTL
		_ = c.ShouldBindJSON(&req)
		ttl := rediskey.CacheShopTTL
		if req.TTLSeconds > 0 {
			ttl = time.Duration(req.TTLSeconds) * time.Second
		}
		if err := svc.WarmUp(c.Request.Context(), id, ttl); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "预热成功"})
	}
}

func listShopTypes(svc *service.ShopTypeService) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := svc.List(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": list})
	}
}

// createVoucher 创建秒杀券（含时间窗校验），同时预热 Redis 库存。
func createVoucher(svc *service.VoucherService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Title     string `json:"title" binding:"required"`
			PayValue  int64  `json:"pay_value" binding:"required,min=1"`
			Stock     int64  `json:"stock" binding:"required,min=1"`
			BeginTime string `json:"begin_time" binding:"required"`
			EndTime   string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		begin, err := time.Parse(time.RFC3339, req.BeginTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "begin_time 格式错误，请用 RFC3339"})
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 格式错误，请用 RFC3339"})
			return
		}
		if !end.After(begin) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 必须晚于 begin_time"})
			return
		}
		v := &model.SeckillVoucher{
			Title:     req.Title,
			PayValue:  req.PayValue,
			Stock:     req.Stock,
			BeginTime: begin,
			EndTime:   end,
		}
		if err := svc.AddSeckillVoucher(c.Request.Context(), v); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

// preloadVoucher 活动前重置库存与去重集合。
func preloadVoucher(svc *service.VoucherService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "id")
		if !ok {
			return
		}
		if err := svc.PreloadStock(c.Request.Context(), id); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "msg": "预热成功"})
	}
}

// liveStock 查询 Redis 实时库存，压测后校验是否超卖。
func liveStock(svc *service.VoucherService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := parseUintParam(c, "id")
		if !ok {
			return
		}
		stock, err := svc.LiveStock(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"stock": stock}})
	}
}

// seckillVoucher 秒杀下单入口。
// userId 由上游认证层放在 X-User-ID 头里显式传入；
// 业务性拒绝与基础设施错误分别映射到不同状态码。
func seckillVoucher(p *seckill.Pipeline) gin.HandlerFunc {
	return func(c *gin.Context) {
		voucherID, ok := parseUintParam(c, "id")
		if !ok {
			return
		}
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "未登录"})
			return
		}

		orderID, err := p.Purchase(c.Request.Context(), voucherID, userID)
		switch {
		case err == nil:
			c.JSON(http.StatusOK, gin.H{"code": 0, "data": gin.H{"order_id": orderID}})
		case errors.Is(err, seckill.ErrVoucherNotOnSale):
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "优惠券不存在或未开售"})
		case errors.Is(err, seckill.ErrInsufficientStock):
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "库存不足，请下次再来"})
		case errors.Is(err, seckill.ErrDuplicatePurchase):
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "你已经购买过了"})
		case errors.Is(err, seckill.ErrQueueSaturated), errors.Is(err, seckill.ErrStopped):
			c.JSON(http.StatusServiceUnavailable, gin.H{"code": 503, "msg": "系统繁忙，请稍后重试"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
		}
	}
}
