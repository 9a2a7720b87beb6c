//go:build integration

package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/eslsoft/lingoledger/internal/entity"
	"github.com/eslsoft/lingoledger/internal/infrastructure/database"
	"github.com/eslsoft/lingoledger/internal/repository"
)

func setupPostgres(t *testing.T) string {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "postgres",
				"POSTGRES_PASSWORD": "postgres",
				"POSTGRES_DB":       "lingoledger",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return fmt.Sprintf("postgres://postgres:postgres@%s:%s/lingoledger?sslmode=disable", host, port.Port())
}

func TestIntegration_PostgresDrivers(t *testing.T) {
	dsn := setupPostgres(t)

	// Both drivers share the database, so each run uses its own user prefix.
	for _, driver := range []string{"pgx", "postgres"} {
		t.Run(driver, func(t *testing.T) {
			ctx := context.Background()
			db, err := database.Open(driver, dsn)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			defer db.Close()
			if err := database.Migrate(ctx, db); err != nil {
				t.Fatalf("migrate: %v", err)
			}

			logger := logrus.New()
			logger.SetLevel(logrus.WarnLevel)
			repo := NewLedgerRepository(db, logger).(*LedgerRepository)
			prefix := driver + "-"

			mustCreate(t, repo, prefix+"racer", t0)
			var wg sync.WaitGroup
			for i := 0; i < entity.MaxHearts; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if _, err := repo.Update(ctx, prefix+"racer", t0, func(l *entity.Ledger) (bool, error) {
						return l.ApplyWrongAnswer(), nil
					}); err != nil {
						t.Errorf("update: %v", err)
					}
				}()
			}
			wg.Wait()
			got, err := repo.Get(ctx, prefix+"racer")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Hearts != 0 {
				t.Fatalf("expected every decrement to land, hearts=%d", got.Hearts)
			}

			event := entity.CompletionEvent{
				UserID:     prefix + "racer",
				Kind:       entity.ExerciseKindReading,
				ExerciseID: "ex-42",
				Points:     10,
			}
			awards := make(chan bool, 6)
			for i := 0; i < cap(awards); i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, awarded, err := repo.RecordCompletion(ctx, event, t0)
					if err != nil {
						t.Errorf("record: %v", err)
					}
					awards <- awarded
				}()
			}
			wg.Wait()
			close(awards)
			count := 0
			for awarded := range awards {
				if awarded {
					count++
				}
			}
			got, _ = repo.Get(ctx, prefix+"racer")
			if count != 1 || got.Experience != 10 {
				t.Fatalf("expected a single award, got %d awards and experience %d", count, got.Experience)
			}

			mustCreate(t, repo, prefix+"idle", t0)
			ledgers, total, err := repo.List(ctx, &repository.ListLedgerQuery{
				FilterOrder: repository.FilterOrder{
					Filter:  fmt.Sprintf("user_id.startsWith(%q) && experience >= 10", prefix),
					OrderBy: "experience desc",
				},
			})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if total != 1 || len(ledgers) != 1 || ledgers[0].UserID != prefix+"racer" {
				t.Fatalf("unexpected list result total=%d ledgers=%+v", total, ledgers)
			}
		})
	}
}
