package database

import (
	"fmt"
	"sync"

	"servicemonitor/pkg/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	db     *gorm.DB
	dbOnce sync.Once
)

// Initialize 初始化数据库连接
func Initialize(cfg *config.Config) error {
	var initErr error
	dbOnce.Do(func() {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
			cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode)

		conn, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent), // 静默模式，避免干扰机器人日志
		})
		if err != nil {
			initErr = fmt.Errorf("连接数据库失败: %v", err)
			return
		}

		// 配置连接池
		sqlDB, err := conn.DB()
		if err != nil {
			initErr = fmt.Errorf("获取数据库实例失败: %v", err)
			return
		}
		sqlDB.SetMaxOpenConns(10) // 最大打开连接数
		sqlDB.SetMaxIdleConns(5)  // 最大空闲连接数

		db = conn
	})
	return initErr
}

// GetDB 获取数据库实例
func GetDB() *gorm.DB {
	return db
}

// Close 关闭数据库连接
func Close() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
