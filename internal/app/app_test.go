package app

import (
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/gavv/httpexpect/v2"
	"github.com/go-chi/httplog/v2"
	"github.com/stretchr/testify/suite"
	"github.com/vadimbarashkov/tinylink/internal/adapter/repository/memory"
	"github.com/vadimbarashkov/tinylink/internal/config"
)

func testConfig() *config.Config {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}
	cfg.Storage = config.StorageMemory
	return cfg
}

func newExpect(t *testing.T, baseURL string) *httpexpect.Expect {
	return httpexpect.WithConfig(httpexpect.Config{
		BaseURL:  baseURL,
		Reporter: httpexpect.NewAssertReporter(t),
		Client: &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	})
}

type APITestSuite struct {
	suite.Suite
	logger *httplog.Logger
	server *httptest.Server
	e      *httpexpect.Expect
}

func (suite *APITestSuite) SetupSuite() {
	suite.logger = httplog.NewLogger("", httplog.Options{Writer: io.Discard})
}

func (suite *APITestSuite) SetupSubTest() {
	handler := newHandler(testConfig(), suite.logger, memory.NewLinkRepository(), nil, time.Now())

	suite.server = httptest.NewServer(handler)
	suite.T().Cleanup(func() {
		suite.server.Close()
	})

	suite.e = newExpect(suite.T(), suite.server.URL)
}

func (suite *APITestSuite) TestLinkLifecycle() {
	suite.Run("create, redirect, inspect, delete", func() {
		created := suite.e.POST("/api/links").
			WithJSON(map[string]string{"target_url": "https://example.com"}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object()

		created.Value("code").String().Match(`^[A-Za-z0-9]{8}$`)
		created.HasValue("total_clicks", 0)
		created.Value("last_clicked").IsNull()

		code := created.Value("code").String().Raw()

		suite.e.GET("/"+code).
			Expect().
			Status(http.StatusFound).
			Header("Location").IsEqual("https://example.com")

		link := suite.e.GET("/api/links/" + code).
			Expect().
			Status(http.StatusOK).
			JSON().Object()

		link.HasValue("total_clicks", 1)
		link.Value("last_clicked").NotNull()

		suite.e.DELETE("/api/links/" + code).
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("success", true)

		suite.e.GET("/"+code).
			Expect().
			Status(http.StatusNotFound).
			Header("Content-Type").HasPrefix("text/html")

		suite.e.GET("/api/links/" + code).
			Expect().
			Status(http.StatusNotFound)
	})

	suite.Run("custom code conflict keeps the first link", func() {
		suite.e.POST("/api/links").
			WithJSON(map[string]string{"target_url": "https://first.com", "code": "mine01"}).
			Expect().
			Status(http.StatusCreated).
			JSON().Object().
			HasValue("code", "mine01")

		suite.e.POST("/api/links").
			WithJSON(map[string]string{"target_url": "https://second.com", "code": "mine01"}).
			Expect().
			Status(http.StatusConflict)

		suite.e.GET("/api/links/mine01").
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("target_url", "https://first.com")
	})

	suite.Run("invalid input", func() {
		suite.e.POST("/api/links").
			WithJSON(map[string]string{"target_url": "not-a-url"}).
			Expect().
			Status(http.StatusBadRequest)

		suite.e.POST("/api/links").
			WithJSON(map[string]string{"target_url": "https://example.com", "code": "abc"}).
			Expect().
			Status(http.StatusBadRequest)

		suite.e.GET("/api/links").
			Expect().
			Status(http.StatusOK).
			JSON().Array().IsEmpty()
	})

	suite.Run("delete unknown code", func() {
		suite.e.DELETE("/api/links/nothere").
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("success", true)
	})

	suite.Run("list is newest first", func() {
		for _, code := range []string{"first1", "second", "third3"} {
			suite.e.POST("/api/links").
				WithJSON(map[string]string{"target_url": "https://example.com/" + code, "code": code}).
				Expect().
				Status(http.StatusCreated)
			time.Sleep(2 * time.Millisecond)
		}

		links := suite.e.GET("/api/links").
			Expect().
			Status(http.StatusOK).
			JSON().Array()

		links.Length().IsEqual(3)
		links.Value(0).Object().HasValue("code", "third3")
		links.Value(2).Object().HasValue("code", "first1")
	})

	suite.Run("favicon and health", func() {
		suite.e.GET("/favicon.ico").
			Expect().
			Status(http.StatusNoContent)

		suite.e.GET("/health").
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("status", "ok").
			HasValue("database", "connected")

		suite.e.GET("/api/links").
			Expect().
			Status(http.StatusOK).
			JSON().Array().IsEmpty()
	})
}

func (suite *APITestSuite) TestConcurrentRedirects() {
	suite.Run("every click is counted", func() {
		const n = 50

		suite.e.POST("/api/links").
			WithJSON(map[string]string{"target_url": "https://example.com", "code": "busy01"}).
			Expect().
			Status(http.StatusCreated)

		client := &http.Client{
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()

				resp, err := client.Get(suite.server.URL + "/busy01")
				if err != nil {
					suite.T().Errorf("redirect request failed: %v", err)
					return
				}
				resp.Body.Close()

				if resp.StatusCode != http.StatusFound {
					suite.T().Errorf("status = %d, want %d", resp.StatusCode, http.StatusFound)
				}
			}()
		}
		wg.Wait()

		suite.e.GET("/api/links/busy01").
			Expect().
			Status(http.StatusOK).
			JSON().Object().
			HasValue("total_clicks", n)
	})
}

func TestAPI(t *testing.T) {
	suite.Run(t, new(APITestSuite))
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig()
	cfg.Log.File = ""

	log, closer, err := newLogger(cfg)
	if err != nil {
		t.Fatalf("Failed to build logger: %v", err)
	}
	defer closer.Close()

	if log.Logger == nil {
		t.Fatal("logger has no slog handler")
	}
}

var codePattern = regexp.MustCompile(`^[A-Za-z0-9]{8}$`)

func TestNewHandler_ShortCodeLength(t *testing.T) {
	cfg := testConfig()
	logger := httplog.NewLogger("", httplog.Options{Writer: io.Discard})

	server := httptest.NewServer(newHandler(cfg, logger, memory.NewLinkRepository(), nil, time.Now()))
	defer server.Close()

	code := newExpect(t, server.URL).
		POST("/api/links").
		WithJSON(map[string]string{"target_url": "https://example.com"}).
		Expect().
		Status(http.StatusCreated).
		JSON().Object().
		Value("code").String().Raw()

	if !codePattern.MatchString(code) {
		t.Errorf("code %q does not match %s", code, codePattern)
	}
}
