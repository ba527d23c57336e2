package infra

import (
	"context"
	"time"

	"throttle-gateway/middleware/ratelimit/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DecisionCounter é a linha agregada por (scope, rota).
type DecisionCounter struct {
	Scope     string `gorm:"primaryKey;size:64"`
	Route     string `gorm:"primaryKey;size:255"`
	Allowed   int64
	Denied    int64
	Bypassed  int64
	UpdatedAt time.Time
}

// SQLStatsStore agrega estatísticas numa tabela via gorm (upsert por linha).
//
// Útil quando as estatísticas precisam sobreviver ao Redis ou serem consultadas
// com SQL. Cada decisão é um INSERT ... ON CONFLICT DO UPDATE.
type SQLStatsStore struct {
	db *gorm.DB
}

func NewSQLStatsStore(db *gorm.DB) (*SQLStatsStore, error) {
	if err := db.AutoMigrate(&DecisionCounter{}); err != nil {
		return nil, err
	}
	return &SQLStatsStore{db: db}, nil
}

func (s *SQLStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.db == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	row := DecisionCounter{
		Scope:     ev.Scope,
		Route:     ev.Method + " " + ev.Path,
		UpdatedAt: at,
	}
	field := outcomeField(ev)
	switch field {
	case "bypassed":
		row.Bypassed = 1
	case "allowed":
		row.Allowed = 1
	default:
		row.Denied = 1
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}, {Name: "route"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			field:        gorm.Expr(field + " + 1"),
			"updated_at": at,
		}),
	}).Create(&row).Error
}

// Totals lê todas as linhas, ordenadas por scope/rota.
func (s *SQLStatsStore) Totals(ctx context.Context) ([]DecisionCounter, error) {
	var rows []DecisionCounter
	err := s.db.WithContext(ctx).Order("scope, route").Find(&rows).Error
	return rows, err
}
