// Package seckill 实现秒杀下单流水线：
// Redis 脚本原子判定资格，成功后立即返回订单号，
// 订单落库由单消费者异步串行完成，数据库不在热路径上。
package seckill

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	rd "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dianping/internal/model"
	"dianping/internal/store"
	rediskey "dianping/pkg/redis"
)

var (
	// ErrVoucherNotOnSale 券未上架（库存键不存在），与库存耗尽严格区分。
	ErrVoucherNotOnSale = errors.New("seckill: voucher not on sale")
	// ErrInsufficientStock 库存不足，业务性拒绝。
	ErrInsufficientStock = errors.New("seckill: insufficient stock")
	// ErrDuplicatePurchase 一人一单约束拒绝，业务性拒绝。
	ErrDuplicatePurchase = errors.New("seckill: duplicate purchase")
	// ErrQueueSaturated 落库队列已满，背压信号，可重试。
	ErrQueueSaturated = errors.New("seckill: order queue saturated, retry later")
	// ErrStopped 流水线已停止接单。
	ErrStopped = errors.New("seckill: pipeline stopped")
)

// PendingOrder 资格判定通过后等待落库的订单。
// 入队后归消费者独占，写库完成即丢弃。
type PendingOrder struct {
	OrderID   int64
	VoucherID uint
	UserID    int64
}

// Pipeline 秒杀流水线。消费者随 Start 启动，Stop 停止接单并排空队列。
// 进程在 Enqueued 与 Persisted 之间崩溃会丢单，这是明确接受的持久性缺口。
type Pipeline struct {
	rdb      *rd.Client
	ids      *rediskey.IDWorker
	vouchers store.SeckillVoucherStore
	orders   store.VoucherOrderStore
	log      *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan PendingOrder
	wg     sync.WaitGroup
}

func NewPipeline(rdb *rd.Client, ids *rediskey.IDWorker,
	vouchers store.SeckillVoucherStore, orders store.VoucherOrderStore,
	queueSize int, log *zap.Logger) *Pipeline {
	return &Pipeline{
		rdb:      rdb,
		ids:      ids,
		vouchers: vouchers,
		orders:   orders,
		log:      log,
		queue:    make(chan PendingOrder, queueSize),
	}
}

// Start 启动唯一的落库消费者。
// 资格竞争已在脚本里解决，落库只需单消费者严格 FIFO。
func (p *Pipeline) Start() {
	p.wg.Add(1)
	go p.consume()
}

// Stop 停止接单、关闭队列并等待存量订单全部落库。
// ctx 到期仍未排空时返回 ctx 错误，剩余订单随进程丢弃。
func (p *Pipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Purchase 处理一次秒杀请求，userId 由上层认证后显式传入。
// 成功返回订单号；业务性拒绝返回对应哨兵错误；
// Redis 不可达按基础设施错误原样上抛。
func (p *Pipeline) Purchase(ctx context.Context, voucherID uint, userID int64) (int64, error) {
	stockKey := rediskey.SeckillStockKey(voucherID)
	orderKey := rediskey.SeckillOrderKey(voucherID)

	res, err := purchaseScript.Run(ctx, p.rdb, []string{stockKey, orderKey}, userID).Int()
	if err != nil {
		return 0, err
	}
	switch res {
	case purchaseOutOfStock:
		return 0, ErrInsufficientStock
	case purchaseDuplicate:
		return 0, ErrDuplicatePurchase
	case purchaseNotOnSale:
		return 0, ErrVoucherNotOnSale
	}

	orderID, err := p.ids.NextID(ctx, "order")
	if err != nil {
		// 资格已占用但订单号拿不到，撤销脚本效果后上抛
		p.rollback(ctx, voucherID, userID)
		return 0, err
	}

	if err := p.enqueue(PendingOrder{OrderID: orderID, VoucherID: voucherID, UserID: userID}); err != nil {
		p.rollback(ctx, voucherID, userID)
		return 0, err
	}
	return orderID, nil
}

// enqueue 非阻塞入队：队列满即返回背压错误，
// 有界队列把无限内存增长变成可观测的拒绝信号。
func (p *Pipeline) enqueue(po PendingOrder) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStopped
	}
	select {
	case p.queue <- po:
		return nil
	default:
		return ErrQueueSaturated
	}
}

// rollback 归还库存并移除去重记录，失败只记日志：
// 最坏情况是该用户无法重试本券，不影响库存不变量。
func (p *Pipeline) rollback(ctx context.Context, voucherID uint, userID int64) {
	stockKey := rediskey.SeckillStockKey(voucherID)
	orderKey := rediskey.SeckillOrderKey(voucherID)
	if err := rollbackScript.Run(ctx, p.rdb, []string{stockKey, orderKey}, userID).Err(); err != nil {
		p.log.Error("seckill: rollback failed",
			zap.Uint("voucher_id", voucherID), zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (p *Pipeline) consume() {
	defer p.wg.Done()
	for po := range p.queue {
		p.persist(po)
	}
}

// persist 扣减 DB 库存并写入订单。
// 调用方早已收到响应，失败不回传，只记日志供运维处理。
func (p *Pipeline) persist(po PendingOrder) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.vouchers.DecrementStock(ctx, po.VoucherID); err != nil {
		p.log.Error("seckill: decrement db stock failed",
			zap.Uint("voucher_id", po.VoucherID), zap.Error(err))
	}

	order := &model.VoucherOrder{ID: po.OrderID, UserID: po.UserID, VoucherID: po.VoucherID}
	if err := p.orders.Insert(ctx, order); err != nil {
		// 唯一冲突说明订单已存在，当作幂等成功
		if looksLikeUniqueViolation(err) {
			return
		}
		p.log.Error("seckill: persist order failed",
			zap.Int64("order_id", po.OrderID), zap.Int64("user_id", po.UserID), zap.Error(err))
	}
}

func looksLikeUniqueViolation(err error) bool {
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
