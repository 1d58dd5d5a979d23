package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"acaqueue/pkg/models"
)

// PostgresStore persists one RuntimeState row per container app, keyed by
// (partition_key="state", row_key=containerApp), following the teacher's
// PostgresStore construction (connection pool tuning, AutoMigrate on boot).
type PostgresStore struct {
	db *gorm.DB
}

func NewPostgresStore(connString string) (*PostgresStore, error) {
	cfg := &gorm.Config{
		Logger:      gormlogger.Default.LogMode(gormlogger.Warn),
		PrepareStmt: true,
	}

	db, err := gorm.Open(postgres.Open(connString), cfg)
	if err != nil {
		return nil, fmt.Errorf("store: connect to postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: acquire sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&models.RuntimeState{}); err != nil {
		return nil, fmt.Errorf("store: schema migration failed: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load returns the persisted state, or a fresh RuntimeState on not-found —
// every mapped app starts life with no row, and that is never an error.
func (s *PostgresStore) Load(ctx context.Context, containerApp string) (models.RuntimeState, error) {
	var row models.RuntimeState
	result := s.db.WithContext(ctx).
		Where("partition_key = ? AND row_key = ?", "state", containerApp).
		First(&row)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return models.NewRuntimeState(containerApp), nil
		}
		return models.RuntimeState{}, fmt.Errorf("store: load %s: %w", containerApp, result.Error)
	}

	row.DecodeFromStorage()
	return row, nil
}

// Save upserts the given state, encoding the JSON sub-columns first.
func (s *PostgresStore) Save(ctx context.Context, state models.RuntimeState) error {
	state.PartitionKey = "state"
	state.UpdatedAt = time.Now()
	state.EncodeForStorage()

	result := s.db.WithContext(ctx).
		Where("partition_key = ? AND row_key = ?", "state", state.ContainerApp).
		Assign(state).
		FirstOrCreate(&models.RuntimeState{PartitionKey: "state", ContainerApp: state.ContainerApp})

	if result.Error != nil {
		return fmt.Errorf("store: save %s: %w", state.ContainerApp, result.Error)
	}
	return nil
}
