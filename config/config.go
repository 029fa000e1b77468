package config

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/vnkhanh/edu-reels-backend/models"
)

var DB *gorm.DB

// Các bảng bắt buộc phải có sau khi migrate
var ExpectedTables = []string{"threads", "videos", "video_script_assets", "quizzes", "quiz_options"}

func DSN(s Settings) string {
	return fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		s.DBHost, s.DBUser, s.DBPassword, s.DBName, s.DBPort,
	)
}

// InitDB kết nối PostgreSQL, cấu hình pool và migrate
func InitDB(s Settings) (*gorm.DB, error) {
	db, err := ConnectDatabase(s)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	DB = db
	return db, nil
}

// ConnectDatabase trả về DB instance chưa migrate (dùng cho reelsctl)
func ConnectDatabase(s Settings) (*gorm.DB, error) {
	level := gormlogger.Warn
	if s.LogMode == "dev" {
		level = gormlogger.Info
	}
	return gorm.Open(postgres.Open(DSN(s)), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
}

// OpenSQLite dùng cho test và chạy local; ":memory:" tạo DB riêng cho mỗi lần gọi
func OpenSQLite(path string) (*gorm.DB, error) {
	db, err := ConnectSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// ConnectSQLite mở SQLite mà không migrate
func ConnectSQLite(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite in-memory: mỗi connection là một DB khác nhau
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Thread{},
		&models.Video{},
		&models.VideoScriptAsset{},
		&models.Quiz{},
		&models.QuizOption{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

// MissingTables so sánh bảng hiện có với ExpectedTables
func MissingTables(db *gorm.DB) (existing []string, missing []string, err error) {
	existing, err = db.Migrator().GetTables()
	if err != nil {
		return nil, nil, err
	}
	have := make(map[string]bool, len(existing))
	for _, t := range existing {
		have[t] = true
	}
	for _, t := range ExpectedTables {
		if !have[t] {
			missing = append(missing, t)
		}
	}
	return existing, missing, nil
}
