package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rd "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"dianping/internal/cache"
	"dianping/internal/model"
	"dianping/internal/store"
	rediskey "dianping/pkg/redis"
)

type testDeps struct {
	mr  *miniredis.Miniredis
	rdb *rd.Client
	db  *gorm.DB
}

func newTestDeps(t *testing.T) *testDeps {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := rd.NewClient(&rd.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.Shop{}, &model.ShopType{}, &model.SeckillVoucher{},
	))
	return &testDeps{mr: mr, rdb: rdb, db: db}
}

func (d *testDeps) shopService() *ShopService {
	return NewShopService(cache.NewClient(d.rdb, zap.NewNop()), store.NewShops(d.db))
}

func TestShopService_QueryByID_PopulatesCache(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	svc := d.shopService()

	require.NoError(t, d.db.Create(&model.Shop{Name: "烤肉店", TypeID: 1}).Error)

	got, err := svc.QueryByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "烤肉店", got.Name)
	assert.True(t, d.mr.Exists(rediskey.CacheShopKey(1)))

	// 删掉 DB 行后仍能从缓存读到，证明第二次不回源
	require.NoError(t, d.db.Unscoped().Delete(&model.Shop{}, 1).Error)
	got, err = svc.QueryByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "烤肉店", got.Name)
}

func TestShopService_QueryByID_NotFound(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	svc := d.shopService()

	got, err := svc.QueryByID(ctx, 404)
	require.NoError(t, err)
	assert.Nil(t, got)
	// 空值哨兵已写入
	assert.True(t, d.mr.Exists(rediskey.CacheShopKey(404)))
}

func TestShopService_Update_InvalidatesCache(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	svc := d.shopService()

	require.NoError(t, d.db.Create(&model.Shop{Name: "旧名字", TypeID: 1}).Error)
	_, err := svc.QueryByID(ctx, 1)
	require.NoError(t, err)
	require.True(t, d.mr.Exists(rediskey.CacheShopKey(1)))

	require.NoError(t, svc.Update(ctx, &model.Shop{ID: 1, Name: "新名字"}))
	assert.False(t, d.mr.Exists(rediskey.CacheShopKey(1)))

	// 下次读取重建出新数据
	got, err := svc.QueryByID(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "新名字", got.Name)
}

func TestShopService_Update_RequiresID(t *testing.T) {
	d := newTestDeps(t)
	svc := d.shopService()
	err := svc.Update(context.Background(), &model.Shop{Name: "没有ID"})
	assert.ErrorIs(t, err, ErrMissingShopID)
}

func TestShopService_WarmUpThenLogicalRead(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	svc := d.shopService()

	require.NoError(t, d.db.Create(&model.Shop{Name: "活动店", TypeID: 2}).Error)
	require.NoError(t, svc.WarmUp(ctx, 1, time.Hour))

	got, err := svc.QueryByIDWithLogicalExpire(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "活动店", got.Name)

	// 未预热的店铺视为不在活动中
	got, err = svc.QueryByIDWithLogicalExpire(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestShopTypeService_List_CachesWholeList(t *testing.T) {
	d := newTestDeps(t)
	ctx := context.Background()
	svc := NewShopTypeService(d.rdb, store.NewShopTypes(d.db))

	require.NoError(t, d.db.Create(&model.ShopType{Name: "美食", Sort: 1}).Error)
	require.NoError(t, d.db.Create(&model.ShopType{Name: "KTV", Sort: 2}).Error)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "美食", list[0].Name)
	assert.True(t, d.mr.Exists(rediskey.CacheShopTypeKey))

	// 第二次走缓存：DB 新增的分类在 TTL 内不可见
	require.NoError(t, d.db.Create(&model.ShopType{Name: "丽人", Sort: 3}).Error)
	list, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}
