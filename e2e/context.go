package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const internalTokenHeader = "X-Internal-Token"

// TestContext holds per-scenario state: the target server, the current
// bearer token and the last response.
type TestContext struct {
	BaseURL       string
	InternalToken string
	SigningKey    string
	Issuer        string

	client      *http.Client
	accessToken string
	userID      string

	lastStatus int
	lastBody   []byte
	vars       map[string]string
	runID      string
}

// NewTestContext reads its target from the environment.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:       env("E2E_BASE_URL", "http://localhost:8080"),
		InternalToken: env("E2E_INTERNAL_TOKEN", "e2e-internal-token"),
		SigningKey:    env("E2E_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:        env("E2E_JWT_ISSUER", "discard"),
		client:        &http.Client{Timeout: 10 * time.Second},
		vars:          make(map[string]string),
		runID:         uuid.NewString()[:8],
	}
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Reset clears scenario state between scenarios.
func (tc *TestContext) Reset() {
	tc.accessToken = ""
	tc.userID = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.vars = make(map[string]string)
	tc.runID = uuid.NewString()[:8]
}

// Scoped suffixes name with the scenario's run id so nullifiers and tx refs
// stay unique against a long-lived server.
func (tc *TestContext) Scoped(name string) string {
	return name + "-" + tc.runID
}

// AuthenticateNewUser mints a bearer token for a fresh user id.
func (tc *TestContext) AuthenticateNewUser() error {
	tc.userID = uuid.NewString()
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": tc.userID,
		"sub":     tc.userID,
		"iss":     tc.Issuer,
		"iat":     now.Unix(),
		"exp":     now.Add(15 * time.Minute).Unix(),
		"jti":     uuid.NewString(),
	})
	signed, err := token.SignedString([]byte(tc.SigningKey))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	tc.accessToken = signed
	return nil
}

func (tc *TestContext) GetAccessToken() string { return tc.accessToken }

// POST sends body to a user route with the current bearer token.
func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, tc.bearer())
}

// GET fetches a user route with the current bearer token plus headers.
func (tc *TestContext) GET(path string, headers map[string]string) error {
	h := tc.bearer()
	for k, v := range headers {
		h[k] = v
	}
	return tc.do(http.MethodGet, path, nil, h)
}

// POSTInternal sends body to a collaborator route.
func (tc *TestContext) POSTInternal(path string, body any) error {
	return tc.do(http.MethodPost, path, body, map[string]string{internalTokenHeader: tc.InternalToken})
}

// GETInternal fetches a collaborator route.
func (tc *TestContext) GETInternal(path string) error {
	return tc.do(http.MethodGet, path, nil, map[string]string{internalTokenHeader: tc.InternalToken})
}

func (tc *TestContext) bearer() map[string]string {
	h := map[string]string{}
	if tc.accessToken != "" {
		h["Authorization"] = "Bearer " + tc.accessToken
	}
	return h
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, strings.TrimRight(tc.BaseURL, "/")+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastResponseStatus() int  { return tc.lastStatus }
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetResponseField returns a top-level field of the last JSON response.
// Dotted paths descend into nested objects.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc map[string]any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %w", err)
	}
	var cur any = doc
	for _, part := range strings.Split(field, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		cur, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in response: %s", field, tc.lastBody)
		}
	}
	return cur, nil
}

// Remember stores a value under name for later steps.
func (tc *TestContext) Remember(name, value string) { tc.vars[name] = value }

// Recall returns a remembered value.
func (tc *TestContext) Recall(name string) (string, error) {
	v, ok := tc.vars[name]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", name)
	}
	return v, nil
}
