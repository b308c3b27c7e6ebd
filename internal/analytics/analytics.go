// Package analytics records what happened to each set of synonyms offered
// in the writing pad.
package analytics

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AnalyticsManager struct {
	db     *gorm.DB
	Logger *zap.Logger
}

// AnalyticsEntry is one popup outcome. Chosen is empty when the popup was
// dismissed without a pick.
type AnalyticsEntry struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time `gorm:"index"`

	Word    string `gorm:"index"`
	Offered string
	Chosen  string
}

// OfferedSynonyms splits the stored offer list.
func (e AnalyticsEntry) OfferedSynonyms() []string {
	return lo.Compact(strings.Split(e.Offered, "\x1f"))
}

// Summary aggregates the table for the stats report.
type Summary struct {
	Total    int64
	Accepted int64
	TopWords []Count
	TopPicks []Count
	First    time.Time
	Last     time.Time
}

type Count struct {
	Value string
	Count int64
}

// AcceptanceRate is the share of offers that ended in a replacement.
func (s Summary) AcceptanceRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Total)
}

func NewAnalyticsManager(dbFilePath string, logger *zap.Logger) (*AnalyticsManager, error) {
	db, err := gorm.Open(sqlite.Open(dbFilePath), &gorm.Config{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database")
		return nil, err
	}

	if err := db.AutoMigrate(&AnalyticsEntry{}); err != nil {
		return nil, err
	}

	return &AnalyticsManager{
		db:     db,
		Logger: logger,
	}, nil
}

func (analyticsManager *AnalyticsManager) Close() error {
	sqlDB, err := analyticsManager.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (analyticsManager *AnalyticsManager) NewEntry(word string, offered []string, chosen string) error {
	entry := AnalyticsEntry{
		Word:    word,
		Offered: strings.Join(offered, "\x1f"),
		Chosen:  chosen,
	}

	result := analyticsManager.db.Create(&entry)
	if result.Error != nil {
		return result.Error
	}

	return nil
}

// Record is NewEntry for the UI path: failures are logged, never returned.
func (analyticsManager *AnalyticsManager) Record(word string, offered []string, chosen string) {
	if err := analyticsManager.NewEntry(word, offered, chosen); err != nil && analyticsManager.Logger != nil {
		analyticsManager.Logger.Warn("error recording suggestion outcome", zap.String("word", word), zap.Error(err))
	}
}

func (analyticsManager *AnalyticsManager) GetRecentEntries(limit int) ([]AnalyticsEntry, error) {
	var entries []AnalyticsEntry
	result := analyticsManager.db.Where("word <> ''").Order("created_at desc").Order("id desc").Limit(limit).Find(&entries)
	if result.Error != nil {
		return nil, result.Error
	}
	return entries, nil
}

func (analyticsManager *AnalyticsManager) ResetAnalytics() error {
	result := analyticsManager.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&AnalyticsEntry{})
	return result.Error
}

func (analyticsManager *AnalyticsManager) DeleteEntry(id uint) error {
	result := analyticsManager.db.Delete(&AnalyticsEntry{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("entry not found")
	}
	return nil
}

func (analyticsManager *AnalyticsManager) GetTotalCount() (int64, error) {
	var count int64
	result := analyticsManager.db.Model(&AnalyticsEntry{}).Count(&count)
	if result.Error != nil {
		return 0, result.Error
	}
	return count, nil
}

// GetWordFrequencies counts how often suggestions were offered per word.
func (analyticsManager *AnalyticsManager) GetWordFrequencies(limit int) ([]Count, error) {
	return analyticsManager.frequencies("word", "word <> ''", limit)
}

// GetChoiceFrequencies counts the synonyms users actually picked.
func (analyticsManager *AnalyticsManager) GetChoiceFrequencies(limit int) ([]Count, error) {
	return analyticsManager.frequencies("chosen", "chosen <> ''", limit)
}

func (analyticsManager *AnalyticsManager) frequencies(column, where string, limit int) ([]Count, error) {
	var results []Count
	if err := analyticsManager.db.Model(&AnalyticsEntry{}).
		Select(column + " as value, count(*) as count").
		Where(where).
		Group(column).
		Order("count desc").Order(column).
		Limit(limit).
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetDailyActivity returns a map of date string (YYYY-MM-DD) to offer count
func (analyticsManager *AnalyticsManager) GetDailyActivity() (map[string]int64, error) {
	var results []struct {
		Date  string
		Count int64
	}
	// SQLite specific date function
	if err := analyticsManager.db.Model(&AnalyticsEntry{}).Select("date(created_at) as date, count(*) as count").Group("date(created_at)").Scan(&results).Error; err != nil {
		return nil, err
	}

	activity := make(map[string]int64)
	for _, r := range results {
		activity[r.Date] = r.Count
	}
	return activity, nil
}

func (analyticsManager *AnalyticsManager) Summarize(top int) (Summary, error) {
	var summary Summary
	var err error

	if summary.Total, err = analyticsManager.GetTotalCount(); err != nil {
		return summary, err
	}
	if err := analyticsManager.db.Model(&AnalyticsEntry{}).Where("chosen <> ''").Count(&summary.Accepted).Error; err != nil {
		return summary, err
	}
	if summary.TopWords, err = analyticsManager.GetWordFrequencies(top); err != nil {
		return summary, err
	}
	if summary.TopPicks, err = analyticsManager.GetChoiceFrequencies(top); err != nil {
		return summary, err
	}
	if summary.Total == 0 {
		return summary, nil
	}

	var first, last AnalyticsEntry
	if err := analyticsManager.db.Order("created_at asc").First(&first).Error; err != nil {
		return summary, err
	}
	if err := analyticsManager.db.Order("created_at desc").First(&last).Error; err != nil {
		return summary, err
	}
	summary.First = first.CreatedAt
	summary.Last = last.CreatedAt
	return summary, nil
}
