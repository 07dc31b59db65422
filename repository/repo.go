package repository

import (
	"context"
	"database/sql"
	"fmt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"movement-analysis/constant"
	"movement-analysis/entities"
)

type AnalysisRepository interface {
	GetDB() *gorm.DB
	Migrate(ctx context.Context) error
	Create(ctx context.Context, analysis *entities.Analysis) error
}

type repo struct {
	db *gorm.DB
}

func NewRepo(db *sql.DB, env constant.Environment) (AnalysisRepository, error) {
	level := logger.Warn
	if env == constant.EnvironmentDevelop {
		level = logger.Info
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(level),
		},
	)
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	return &repo{
		db: gormDB,
	}, nil
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

func (r *repo) Migrate(ctx context.Context) error {
	return r.GetDB().WithContext(ctx).AutoMigrate(&entities.Analysis{})
}

func (r *repo) Create(ctx context.Context, analysis *entities.Analysis) error {
	return r.GetDB().WithContext(ctx).Create(analysis).Error
}
