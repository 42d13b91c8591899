package repos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/courseloop/courseloop-backend/internal/logger"
	"github.com/courseloop/courseloop-backend/internal/types"
)

// Exercises the claim path against a real database because the guarantee
// under test, SKIP LOCKED row claiming, does not exist outside one.
func TestCertificateAllocationRepoConcurrentClaims(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" {
		t.Skip("set TEST_DATABASE_URL to run database integration tests")
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	if err := gdb.AutoMigrate(&types.CertificateAllocation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	defer log.Sync()

	repo := NewCertificateAllocationRepo(gdb, log)
	ctx := context.Background()

	courseID := uuid.New()
	t.Cleanup(func() {
		gdb.Where("course_id = ?", courseID).Delete(&types.CertificateAllocation{})
	})

	const poolSize = 5
	const claimers = 20

	seed := make([]*types.CertificateAllocation, 0, poolSize)
	for i := 0; i < poolSize; i++ {
		seed = append(seed, &types.CertificateAllocation{
			ID:       uuid.New(),
			CourseID: courseID,
			Number:   fmt.Sprintf("IT-%s-%04d", courseID.String()[:8], i+1),
		})
	}
	if err := repo.CreateBatch(ctx, nil, seed); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	type outcome struct {
		number string
		err    error
	}
	results := make([]outcome, claimers)
	var wg sync.WaitGroup
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			row, err := repo.ClaimNext(ctx, nil, courseID)
			if err != nil {
				results[i] = outcome{err: err}
				return
			}
			results[i] = outcome{number: row.Number}
		}(i)
	}
	wg.Wait()

	claimed := map[string]bool{}
	exhausted := 0
	for i, res := range results {
		switch {
		case res.err == nil:
			if claimed[res.number] {
				t.Fatalf("number %q claimed twice", res.number)
			}
			claimed[res.number] = true
		case errors.Is(res.err, ErrPoolExhausted):
			exhausted++
		default:
			t.Fatalf("claimer %d: unexpected error: %v", i, res.err)
		}
	}
	if len(claimed) != poolSize {
		t.Fatalf("expected %d distinct numbers claimed, got %d", poolSize, len(claimed))
	}
	if exhausted != claimers-poolSize {
		t.Fatalf("expected %d exhausted claimers, got %d", claimers-poolSize, exhausted)
	}

	remaining, err := repo.CountRemaining(ctx, nil, courseID)
	if err != nil {
		t.Fatalf("CountRemaining: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected an empty pool, %d rows remain", remaining)
	}
}
