// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/jaycherian/gcp-go-clip-finder/internal/core/model"
	"github.com/pgvector/pgvector-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const insertBatchSize = 200

type videoRow struct {
	Id            string `gorm:"primaryKey;size:64"`
	Filename      string
	SourceURL     string
	VideoPath     string
	FramesDir     string
	Duration      float64
	FrameInterval float64
	TextModel     string
	VisualModel   string
	Status        string `gorm:"index;size:32"`
	Progress      float64
	Message       string
	CreateDate    time.Time
	UpdateDate    time.Time
	Segments      []segmentRow `gorm:"foreignKey:VideoId"`
	Frames        []frameRow   `gorm:"foreignKey:VideoId"`
}

func (videoRow) TableName() string { return "videos" }

type segmentRow struct {
	VideoId   string  `gorm:"primaryKey;size:64"`
	Seq       int     `gorm:"primaryKey;autoIncrement:false"`
	Start     float64 `gorm:"column:start_time"`
	End       float64 `gorm:"column:end_time"`
	Text      string
	Embedding *pgvector.Vector `gorm:"type:vector"`
}

func (segmentRow) TableName() string { return "segments" }

type frameRow struct {
	VideoId     string  `gorm:"primaryKey;size:64"`
	FrameNumber int     `gorm:"primaryKey;autoIncrement:false"`
	Timestamp   float64 `gorm:"column:ts"`
	Path        string
	Embedding   *pgvector.Vector `gorm:"type:vector"`
}

func (frameRow) TableName() string { return "frames" }

// OpenDatabase picks a dialector from the DSN: postgres urls use the pgx
// driver with the vector extension, anything else is a SQLite file path.
func OpenDatabase(dsn string, debug bool) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
	if debug {
		cfg.Logger = logger.Default.LogMode(logger.Info)
	}
	isPostgres := strings.HasPrefix(dsn, "postgres")
	var dial gorm.Dialector
	if isPostgres {
		dial = postgres.New(postgres.Config{DSN: dsn})
	} else {
		dial = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", model.ErrInfrastructure, err)
	}
	if isPostgres {
		if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
			return nil, fmt.Errorf("%w: enable vector extension: %w", model.ErrInfrastructure, err)
		}
	} else {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", model.ErrInfrastructure, err)
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	}
	return db, nil
}

// GormSessionStore keeps sessions in three tables: videos, segments, frames.
type GormSessionStore struct {
	db *gorm.DB
}

var _ SessionStore = (*GormSessionStore)(nil)

// NewGormSessionStore migrates the schema and returns the store.
func NewGormSessionStore(db *gorm.DB) (*GormSessionStore, error) {
	if err := db.AutoMigrate(&videoRow{}, &segmentRow{}, &frameRow{}); err != nil {
		return nil, fmt.Errorf("%w: migrate: %w", model.ErrInfrastructure, err)
	}
	return &GormSessionStore{db: db}, nil
}

func infra(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", model.ErrInfrastructure, op, err)
}

func (s *GormSessionStore) Load(ctx context.Context, id string) (*model.VideoSession, error) {
	var row videoRow
	err := s.db.WithContext(ctx).
		Preload("Segments", func(db *gorm.DB) *gorm.DB { return db.Order("seq") }).
		Preload("Frames", func(db *gorm.DB) *gorm.DB { return db.Order("frame_number") }).
		First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: video %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, infra("load session", err)
	}
	return toSession(&row), nil
}

func (s *GormSessionStore) Save(ctx context.Context, session *model.VideoSession) error {
	row := fromSession(session)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Segments", "Frames").Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
			return err
		}
		if err := tx.Where("video_id = ?", row.Id).Delete(&segmentRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("video_id = ?", row.Id).Delete(&frameRow{}).Error; err != nil {
			return err
		}
		if len(row.Segments) > 0 {
			if err := tx.CreateInBatches(row.Segments, insertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(row.Frames) > 0 {
			if err := tx.CreateInBatches(row.Frames, insertBatchSize).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return infra("save session", err)
	}
	return nil
}

func (s *GormSessionStore) Delete(ctx context.Context, id string) error {
	var affected int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("video_id = ?", id).Delete(&segmentRow{}).Error; err != nil {
			return err
		}
		if err := tx.Where("video_id = ?", id).Delete(&frameRow{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&videoRow{})
		affected = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return infra("delete session", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: video %s", model.ErrNotFound, id)
	}
	return nil
}

func (s *GormSessionStore) LoadStatus(ctx context.Context, id string) (*model.ProcessingStatus, error) {
	var row videoRow
	err := s.db.WithContext(ctx).Select("id", "status", "progress", "message").First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: video %s", model.ErrNotFound, id)
	}
	if err != nil {
		return nil, infra("load status", err)
	}
	return &model.ProcessingStatus{
		VideoId:  row.Id,
		Status:   model.Status(row.Status),
		Progress: row.Progress,
		Message:  row.Message,
	}, nil
}

func (s *GormSessionStore) SaveStatus(ctx context.Context, status *model.ProcessingStatus) error {
	res := s.db.WithContext(ctx).Model(&videoRow{}).Where("id = ?", status.VideoId).Updates(map[string]any{
		"status":      string(status.Status),
		"progress":    status.Progress,
		"message":     status.Message,
		"update_date": time.Now(),
	})
	if res.Error != nil {
		return infra("save status", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: video %s", model.ErrNotFound, status.VideoId)
	}
	return nil
}

func (s *GormSessionStore) List(ctx context.Context) ([]*model.VideoSession, error) {
	var rows []videoRow
	if err := s.db.WithContext(ctx).Order("create_date desc").Find(&rows).Error; err != nil {
		return nil, infra("list sessions", err)
	}
	out := make([]*model.VideoSession, 0, len(rows))
	for i := range rows {
		out = append(out, toSession(&rows[i]))
	}
	return out, nil
}

func vectorOf(v []float32) *pgvector.Vector {
	if len(v) == 0 {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func sliceOf(v *pgvector.Vector) []float32 {
	if v == nil {
		return nil
	}
	return v.Slice()
}

func fromSession(v *model.VideoSession) *videoRow {
	row := &videoRow{
		Id:            v.Id,
		Filename:      v.Filename,
		SourceURL:     v.SourceURL,
		VideoPath:     v.VideoPath,
		FramesDir:     v.FramesDir,
		Duration:      v.Duration,
		FrameInterval: v.FrameInterval,
		TextModel:     v.TextModel,
		VisualModel:   v.VisualModel,
		Status:        string(v.Status),
		Progress:      v.Progress,
		Message:       v.Message,
		CreateDate:    v.CreateDate,
		UpdateDate:    time.Now(),
		Segments:      make([]segmentRow, 0, len(v.Segments)),
		Frames:        make([]frameRow, 0, len(v.Frames)),
	}
	for i, s := range v.Segments {
		row.Segments = append(row.Segments, segmentRow{
			VideoId: v.Id, Seq: i, Start: s.Start, End: s.End, Text: s.Text, Embedding: vectorOf(s.Embedding),
		})
	}
	for _, f := range v.Frames {
		row.Frames = append(row.Frames, frameRow{
			VideoId: v.Id, FrameNumber: f.FrameNumber, Timestamp: f.Timestamp, Path: f.Path, Embedding: vectorOf(f.Embedding),
		})
	}
	return row
}

func toSession(row *videoRow) *model.VideoSession {
	v := &model.VideoSession{
		Id:            row.Id,
		Filename:      row.Filename,
		SourceURL:     row.SourceURL,
		VideoPath:     row.VideoPath,
		FramesDir:     row.FramesDir,
		Duration:      row.Duration,
		FrameInterval: row.FrameInterval,
		TextModel:     row.TextModel,
		VisualModel:   row.VisualModel,
		Status:        model.Status(row.Status),
		Progress:      row.Progress,
		Message:       row.Message,
		CreateDate:    row.CreateDate,
		UpdateDate:    row.UpdateDate,
		Segments:      make([]*model.Segment, 0, len(row.Segments)),
		Frames:        make([]*model.Frame, 0, len(row.Frames)),
	}
	for _, s := range row.Segments {
		v.Segments = append(v.Segments, &model.Segment{Start: s.Start, End: s.End, Text: s.Text, Embedding: sliceOf(s.Embedding)})
	}
	for _, f := range row.Frames {
		v.Frames = append(v.Frames, &model.Frame{Timestamp: f.Timestamp, FrameNumber: f.FrameNumber, Path: f.Path, Embedding: sliceOf(f.Embedding)})
	}
	return v
}
