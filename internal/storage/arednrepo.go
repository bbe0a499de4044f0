package storage

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ArednInfoRow is a flattened, ecosystem-compatible view of a node,
// kept as a simple GORM model rather than hand-rolled SQL since nothing
// about it needs partial-update control: every column is rewritten
// every cycle.
type ArednInfoRow struct {
	NodeName  string `gorm:"column:node_name;primaryKey"`
	WlanIP    string `gorm:"column:wlan_ip"`
	Lat       float64
	Lon       float64
	GridSquare string `gorm:"column:grid_square"`
	Model     string
	Firmware  string `gorm:"column:firmware_version"`
	HopsAway  int    `gorm:"column:hops_away"`
	UpdatedAt time.Time
}

func (ArednInfoRow) TableName() string { return "aredn_info" }

// ArednRepo manages the aredn_info compatibility table via GORM.
type ArednRepo struct{ db *gorm.DB }

func NewArednRepo(db *gorm.DB) *ArednRepo { return &ArednRepo{db: db} }

// BulkUpsert replaces every row in one batch per cycle.
func (r *ArednRepo) BulkUpsert(ctx context.Context, rows []ArednInfoRow) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "node_name"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"wlan_ip", "lat", "lon", "grid_square", "model", "firmware_version",
			"hops_away", "updated_at",
		}),
	}).Create(&rows).Error
}

// GetAll returns every row, used only by tests and diagnostics.
func (r *ArednRepo) GetAll(ctx context.Context) ([]ArednInfoRow, error) {
	var rows []ArednInfoRow
	err := r.db.WithContext(ctx).Find(&rows).Error
	return rows, err
}
