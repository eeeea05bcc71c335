package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/phofmann/floodgate/internal/auth"
	"github.com/phofmann/floodgate/internal/database"
	"github.com/phofmann/floodgate/internal/handlers"
	middlewareCustom "github.com/phofmann/floodgate/internal/middleware"
	"github.com/phofmann/floodgate/internal/models"
	"github.com/phofmann/floodgate/internal/otp"
	"github.com/phofmann/floodgate/internal/routes"
	"github.com/phofmann/floodgate/internal/services"
	pkghttp "github.com/phofmann/floodgate/pkg/http"
	pkglogger "github.com/phofmann/floodgate/pkg/logger"
)

// SentEmail represents a captured email message
type SentEmail struct {
	To        string
	ResetLink string
}

// MockEmailService captures sent emails for test assertions
type MockEmailService struct {
	SentEmails []SentEmail
	mu         sync.Mutex
}

// SendPasswordResetEmail records the email
func (m *MockEmailService) SendPasswordResetEmail(ctx context.Context, email, resetLink string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SentEmails = append(m.SentEmails, SentEmail{
		To:        email,
		ResetLink: resetLink,
	})
	return nil
}

// GetLastEmail returns the most recent email sent
func (m *MockEmailService) GetLastEmail() *SentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.SentEmails) == 0 {
		return nil
	}
	return &m.SentEmails[len(m.SentEmails)-1]
}

// TestServer wraps httptest.Server with database and all dependencies
type TestServer struct {
	Server       *httptest.Server
	DB           *database.DB
	EmailService *MockEmailService

	// Dependency references for inspection in tests
	Challenges *auth.ChallengeManager
	Engine     *otp.Engine
	logger     *slog.Logger
}

// NewTestServer initializes a complete HTTP server with real database + mocked email
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	floodRepo, accountRepo, codeRepo := InitializeRepositories(db)

	mockEmail := &MockEmailService{}

	auditLogger := pkglogger.NewAuditLogger(logger)

	floodService, err := services.NewFloodService(floodRepo, models.DefaultFloodRules(), logger)
	if err != nil {
		return nil, err
	}

	// Small batch keeps bcrypt cost manageable in tests
	codeService := services.NewEmergencyCodeService(codeRepo, 3, logger)
	engine := otp.NewEngine("FloodgateTest")

	twoFactorService := services.NewTwoFactorService(
		accountRepo,
		codeService,
		engine,
		auditLogger,
		logger,
		services.TwoFactorConfig{SecretLength: 16, Discrepancy: 1},
	)

	challenges := auth.NewChallengeManager("test-secret-32-characters-long-for-testing", 5*time.Minute)
	timing := auth.NewTimingDelay(auth.TimingConfig{})
	ipConfig := &pkghttp.IPConfig{}

	accountHandler := handlers.NewAccountHandler(
		floodService,
		mockEmail,
		"http://localhost:3000/account/password/new",
		ipConfig,
		logger,
	)
	twoFactorHandler := handlers.NewTwoFactorHandler(
		twoFactorService,
		challenges,
		floodService,
		timing,
		5*time.Minute,
		ipConfig,
		logger,
	)

	// Setup Chi router with middleware, production pattern with a high
	// in-memory rate limit so the DB-backed flood limits stay observable
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, accountHandler, twoFactorHandler,
		middlewareCustom.RateLimitConfig{RequestsPerMinute: 10000})

	server := httptest.NewServer(r)

	return &TestServer{
		Server:       server,
		DB:           db,
		EmailService: mockEmail,
		Challenges:   challenges,
		Engine:       engine,
		logger:       logger,
	}, nil
}

// Close shuts down the test server
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// Request makes an HTTP request to the test server
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	url := ts.Server.URL + path

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, url, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return http.DefaultClient.Do(req)
}

// ParseJSONResponse parses JSON response body into target struct
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts error message from error response
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
