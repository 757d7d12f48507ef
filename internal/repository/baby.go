package repository

import (
	"context"
	"database/sql"
	"fmt"

	"teddy-monitor/internal/models"

	"go.uber.org/zap"
)

// BabyRepository 监护对象目录（只读）
// 目录由外部端（App/后台）维护，本服务只消费快照
type BabyRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewBabyRepository 创建监护对象目录仓库
func NewBabyRepository(db *sql.DB, logger *zap.Logger) *BabyRepository {
	return &BabyRepository{
		db:     db,
		logger: logger,
	}
}

// ListBabies 列出监护对象快照
// ownerID 为空时返回全部对象（后台轮询模式）
func (r *BabyRepository) ListBabies(ctx context.Context, ownerID string) ([]models.Baby, error) {
	query := `
		SELECT baby_id, baby_name, owner_id, device_id
		FROM babies
	`
	var rows *sql.Rows
	var err error
	if ownerID != "" {
		query += ` WHERE owner_id = $1`
		rows, err = r.db.QueryContext(ctx, query+` ORDER BY created_at`, ownerID)
	} else {
		rows, err = r.db.QueryContext(ctx, query+` ORDER BY created_at`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list babies: %w", err)
	}
	defer rows.Close()

	var babies []models.Baby
	for rows.Next() {
		var baby models.Baby
		var deviceID sql.NullString
		if err := rows.Scan(&baby.ID, &baby.Name, &baby.OwnerID, &deviceID); err != nil {
			return nil, fmt.Errorf("failed to scan baby: %w", err)
		}
		if deviceID.Valid {
			baby.DeviceID = deviceID.String
		}
		babies = append(babies, baby)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate babies: %w", err)
	}

	return babies, nil
}

// GetBaby 根据 baby_id 获取单个监护对象
func (r *BabyRepository) GetBaby(ctx context.Context, babyID string) (*models.Baby, error) {
	query := `
		SELECT baby_id, baby_name, owner_id, device_id
		FROM babies
		WHERE baby_id = $1
	`

	var baby models.Baby
	var deviceID sql.NullString
	err := r.db.QueryRowContext(ctx, query, babyID).Scan(&baby.ID, &baby.Name, &baby.OwnerID, &deviceID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("baby not found: %s", babyID)
		}
		return nil, fmt.Errorf("failed to get baby: %w", err)
	}
	if deviceID.Valid {
		baby.DeviceID = deviceID.String
	}

	return &baby, nil
}
