//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/vadimbarashkov/tinylink/internal/entity"
	"github.com/vadimbarashkov/tinylink/migrations"

	pgpkg "github.com/vadimbarashkov/tinylink/pkg/postgres"
)

type LinkRepositoryIntegrationSuite struct {
	suite.Suite
	db   *sqlx.DB
	repo *LinkRepository
}

func (suite *LinkRepositoryIntegrationSuite) SetupSuite() {
	ctx := context.Background()

	cont, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tinylink"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	if err != nil {
		suite.T().Fatalf("Failed to start postgres container: %v", err)
	}
	suite.T().Cleanup(func() {
		if err := cont.Terminate(ctx); err != nil {
			suite.T().Errorf("Failed to terminate postgres container: %v", err)
		}
	})

	dsn, err := cont.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		suite.T().Fatalf("Failed to get postgres connection string: %v", err)
	}

	suite.db, err = pgpkg.New(ctx, dsn)
	if err != nil {
		suite.T().Fatalf("Failed to connect to database: %v", err)
	}
	suite.T().Cleanup(func() {
		suite.db.Close()
	})

	if err := pgpkg.RunMigrations(migrations.FS, ".", dsn); err != nil {
		suite.T().Fatalf("Failed to run migrations: %v", err)
	}

	// A second run must be a no-op.
	if err := pgpkg.RunMigrations(migrations.FS, ".", dsn); err != nil {
		suite.T().Fatalf("Failed to rerun migrations: %v", err)
	}

	suite.repo = NewLinkRepository(suite.db)
}

func (suite *LinkRepositoryIntegrationSuite) SetupSubTest() {
	if _, err := suite.db.Exec(`TRUNCATE TABLE links`); err != nil {
		suite.T().Fatalf("Failed to clean links table: %v", err)
	}
}

func (suite *LinkRepositoryIntegrationSuite) TestInsert() {
	ctx := context.Background()

	suite.Run("fresh link", func() {
		link, err := suite.repo.Insert(ctx, "abc123", "https://example.com")

		suite.Require().NoError(err)
		suite.Equal("abc123", link.Code)
		suite.Zero(link.TotalClicks)
		suite.Nil(link.LastClicked)
		suite.WithinDuration(time.Now(), link.CreatedAt, time.Minute)
	})

	suite.Run("duplicate code", func() {
		_, err := suite.repo.Insert(ctx, "abc123", "https://example.com")
		suite.Require().NoError(err)

		link, err := suite.repo.Insert(ctx, "abc123", "https://other.com")

		suite.ErrorIs(err, entity.ErrDuplicateKey)
		suite.Nil(link)

		got, err := suite.repo.SelectByCode(ctx, "abc123")
		suite.Require().NoError(err)
		suite.Equal("https://example.com", got.TargetURL)
	})

	suite.Run("schema rejects malformed code", func() {
		_, err := suite.repo.Insert(ctx, "bad!", "https://example.com")

		suite.Error(err)
		suite.NotErrorIs(err, entity.ErrDuplicateKey)
	})
}

func (suite *LinkRepositoryIntegrationSuite) TestSelectAll() {
	ctx := context.Background()

	suite.Run("empty", func() {
		links, err := suite.repo.SelectAll(ctx)

		suite.NoError(err)
		suite.Empty(links)
	})

	suite.Run("newest first", func() {
		for _, code := range []string{"first1", "second", "third3"} {
			_, err := suite.repo.Insert(ctx, code, "https://example.com")
			suite.Require().NoError(err)
			time.Sleep(5 * time.Millisecond)
		}

		links, err := suite.repo.SelectAll(ctx)

		suite.NoError(err)
		suite.Len(links, 3)
		suite.Equal("third3", links[0].Code)
		suite.Equal("first1", links[2].Code)
	})
}

func (suite *LinkRepositoryIntegrationSuite) TestIncrementClicks() {
	ctx := context.Background()

	suite.Run("unknown code", func() {
		err := suite.repo.IncrementClicks(ctx, "nope12")

		suite.ErrorIs(err, entity.ErrLinkNotFound)
	})

	suite.Run("concurrent increments are not lost", func() {
		const n = 100

		_, err := suite.repo.Insert(ctx, "hot123", "https://example.com")
		suite.Require().NoError(err)

		var wg sync.WaitGroup
		errs := make(chan error, n)

		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := suite.repo.IncrementClicks(ctx, "hot123"); err != nil {
					errs <- err
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			suite.NoError(err)
		}

		link, err := suite.repo.SelectByCode(ctx, "hot123")
		suite.Require().NoError(err)
		suite.Equal(int64(n), link.TotalClicks)
		suite.NotNil(link.LastClicked)
	})
}

func (suite *LinkRepositoryIntegrationSuite) TestDeleteByCode() {
	ctx := context.Background()

	suite.Run("idempotent", func() {
		_, err := suite.repo.Insert(ctx, "gone12", "https://example.com")
		suite.Require().NoError(err)

		suite.NoError(suite.repo.DeleteByCode(ctx, "gone12"))
		suite.NoError(suite.repo.DeleteByCode(ctx, "gone12"))

		exists, err := suite.repo.ExistsByCode(ctx, "gone12")
		suite.NoError(err)
		suite.False(exists)

		_, err = suite.repo.SelectByCode(ctx, "gone12")
		suite.ErrorIs(err, entity.ErrLinkNotFound)
	})
}

func (suite *LinkRepositoryIntegrationSuite) TestPing() {
	suite.Run("reachable", func() {
		suite.NoError(suite.repo.Ping(context.Background()))
	})

	suite.Run("canceled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		suite.ErrorIs(suite.repo.Ping(ctx), entity.ErrUnavailable)
	})
}

func TestLinkRepositoryIntegration(t *testing.T) {
	suite.Run(t, new(LinkRepositoryIntegrationSuite))
}
