// Package db は gorm を使ったデータベース接続と汎用的な読み書きを提供します。
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate record")
)

// GormDB は gorm.DB をラップした構造体です。
type GormDB struct {
	db *gorm.DB
}

// NewPostgresDB は Postgres に接続し、疎通確認まで行います。
func NewPostgresDB(ctx context.Context, dsn string, logs *zap.SugaredLogger) (*GormDB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	g := &GormDB{db: db}
	if err := g.Ping(ctx); err != nil {
		_ = g.Close()
		return nil, err
	}

	logs.Infow("database connected")
	return g, nil
}

// NewGormDB は既に開いた gorm.DB から GormDB を作成します。
func NewGormDB(db *gorm.DB) *GormDB {
	return &GormDB{db: db}
}

// Ping はデータベースへの疎通を確認します。
func (g *GormDB) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db conn: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Close はコネクションプールを閉じます。
func (g *GormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db conn: %w", err)
	}
	return sqlDB.Close()
}

// MigrateModels はモデルに合わせてテーブルを作成・更新します。
func (g *GormDB) MigrateModels(models ...any) error {
	if err := g.db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to migrate table: %w", err)
	}
	return nil
}

// GetBy は column = value に一致する最初のレコードを entity に読み込みます。
func (g *GormDB) GetBy(ctx context.Context, column string, value any, entity any) error {
	query := fmt.Sprintf("%s = ?", column)
	err := g.db.WithContext(ctx).Where(query, value).First(entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("getting record by %q: %w", column, err)
	}
	return nil
}

// Insert はレコードを1件追加します。一意制約違反は ErrDuplicate になります。
func (g *GormDB) Insert(ctx context.Context, entity any) error {
	err := g.db.WithContext(ctx).Create(entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert to table: %w", err)
	}
	return nil
}
