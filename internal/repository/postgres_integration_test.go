//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/dujiao-next/affiliate-engine/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := models.AllModels()
	_ = db.Migrator().DropTable(cleanupModels...)
	if err := db.AutoMigrate(cleanupModels...); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestPostgresReferralCodeUniqueViolation(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewReferralCodeRepository(db)

	if err := repo.Create(&models.ReferralCode{UserID: 1, Code: "PGCODE01"}); err != nil {
		t.Fatalf("create code failed: %v", err)
	}
	err := repo.Create(&models.ReferralCode{UserID: 2, Code: "PGCODE01"})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
}

func TestPostgresConcurrentWalletTransitions(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewAffiliateRepository(db)

	aff, err := repo.GetOrCreateByUserID(7)
	if err != nil || aff == nil {
		t.Fatalf("create affiliate failed: %v", err)
	}
	if err := repo.CreditPending(aff.ID, decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("credit pending failed: %v", err)
	}

	// 十个并发各转出 150，只能成功 6 次
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repo.MovePendingToAvailable(aff.ID, decimal.NewFromInt(150)); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != 6 {
		t.Fatalf("expected 6 successful moves, got %d", succeeded)
	}
	reloaded, err := repo.GetByID(aff.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("reload affiliate failed: %v", err)
	}
	if !reloaded.Wallet().Balanced() {
		t.Fatalf("wallet unbalanced: %+v", reloaded.Wallet())
	}
	if reloaded.Pending.String() != "100.00" || reloaded.Available.String() != "900.00" {
		t.Fatalf("unexpected wallet: %+v", reloaded.Wallet())
	}
}
