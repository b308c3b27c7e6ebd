// Package study tracks writing sessions: a session starts on the first
// keystroke and ends once the writer has been idle for a while.
package study

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/atinylittleshell/quill/pkg/debounce"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const DefaultIdle = 2 * time.Minute

type StudySession struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`

	StartedAt  time.Time
	EndedAt    sql.NullTime
	Keystrokes int
}

// Duration is the active writing time of a finished session.
func (s StudySession) Duration() time.Duration {
	if !s.EndedAt.Valid {
		return 0
	}
	return s.EndedAt.Time.Sub(s.StartedAt)
}

type Tracker struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time

	mu           sync.Mutex
	current      *StudySession
	lastActivity time.Time
	idleEnd      func()
}

func NewTracker(dbFilePath string, idle time.Duration, logger *zap.Logger) (*Tracker, error) {
	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database")
		return nil, err
	}

	if err := db.AutoMigrate(&StudySession{}); err != nil {
		return nil, err
	}

	if idle <= 0 {
		idle = DefaultIdle
	}

	tracker := &Tracker{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
	tracker.idleEnd = debounce.Debounce(idle, func() {
		if err := tracker.End(); err != nil {
			logger.Warn("error ending study session", zap.Error(err))
		}
	})
	return tracker, nil
}

// Touch records writing activity, opening a session if none is running.
func (tracker *Tracker) Touch() {
	tracker.mu.Lock()
	now := tracker.now()
	if tracker.current == nil {
		session := &StudySession{StartedAt: now}
		if err := tracker.db.Create(session).Error; err != nil {
			tracker.mu.Unlock()
			tracker.logger.Warn("error starting study session", zap.Error(err))
			return
		}
		tracker.logger.Debug("study session started", zap.Uint("id", session.ID))
		tracker.current = session
	}
	tracker.current.Keystrokes++
	tracker.lastActivity = now
	tracker.mu.Unlock()

	tracker.idleEnd()
}

// Active reports whether a session is running.
func (tracker *Tracker) Active() bool {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return tracker.current != nil
}

// End closes the running session at the time of its last activity, so idle
// time is not counted.
func (tracker *Tracker) End() error {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	if tracker.current == nil {
		return nil
	}
	session := tracker.current
	tracker.current = nil

	session.EndedAt = sql.NullTime{Time: tracker.lastActivity, Valid: true}
	if err := tracker.db.Save(session).Error; err != nil {
		return err
	}
	tracker.logger.Debug("study session ended",
		zap.Uint("id", session.ID),
		zap.Duration("duration", session.Duration()),
		zap.Int("keystrokes", session.Keystrokes),
	)
	return nil
}

func (tracker *Tracker) Close() error {
	if err := tracker.End(); err != nil {
		tracker.logger.Warn("error ending study session", zap.Error(err))
	}
	sqlDB, err := tracker.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (tracker *Tracker) GetRecentSessions(limit int) ([]StudySession, error) {
	var sessions []StudySession
	result := tracker.db.Where("ended_at IS NOT NULL").Order("started_at desc").Limit(limit).Find(&sessions)
	if result.Error != nil {
		return nil, result.Error
	}
	return sessions, nil
}

// TotalTime sums the duration of every finished session.
func (tracker *Tracker) TotalTime() (time.Duration, error) {
	var sessions []StudySession
	if err := tracker.db.Where("ended_at IS NOT NULL").Find(&sessions).Error; err != nil {
		return 0, err
	}
	var total time.Duration
	for _, s := range sessions {
		total += s.Duration()
	}
	return total, nil
}
