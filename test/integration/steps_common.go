package integration

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cucumber/godog"
	"golang.org/x/crypto/bcrypt"
)

// StepsContext holds state shared between step definitions
type StepsContext struct {
	tc           *TestContext
	response     *http.Response
	responseBody []byte
	authToken    string
	apiKeys      map[string]string
	runID        string
}

// NewStepsContext creates a new steps context
func NewStepsContext(tc *TestContext) *StepsContext {
	return &StepsContext{
		tc:      tc,
		apiKeys: make(map[string]string),
	}
}

// RegisterSteps registers all step definitions
func (s *StepsContext) RegisterSteps(sc *godog.ScenarioContext) {
	// Background steps
	sc.Step(`^an AegisID server is running$`, s.anAegisIDServerIsRunning)
	sc.Step(`^an operator "([^"]*)" exists with role "([^"]*)"$`, s.anOperatorExistsWithRole)
	sc.Step(`^I am authenticated as "([^"]*)"$`, s.iAmAuthenticatedAs)

	// Authentication steps
	sc.Step(`^I authenticate as "([^"]*)" with the correct API key$`, s.iAuthenticateWithCorrectAPIKey)
	sc.Step(`^I authenticate as "([^"]*)" with API key "([^"]*)"$`, s.iAuthenticateWithAPIKey)

	// Response steps
	sc.Step(`^the response status should be (\d+)$`, s.theResponseStatusShouldBe)
	sc.Step(`^I should receive a valid operator token$`, s.iShouldReceiveAValidOperatorToken)
	sc.Step(`^the response body should contain "([^"]*)"$`, s.theResponseBodyShouldContain)

	s.registerPipelineSteps(sc)
}

// Background steps

func (s *StepsContext) anAegisIDServerIsRunning() error {
	// Server is already running via TestContext
	return nil
}

func (s *StepsContext) anOperatorExistsWithRole(login, role string) error {
	apiKey := "test-api-key-" + login
	s.apiKeys[login] = apiKey

	digest, err := bcrypt.GenerateFromPassword([]byte(apiKey), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("failed to digest api key: %w", err)
	}

	return s.tc.DB.Exec(`
		INSERT INTO operators (login, api_key_digest, role) VALUES (?, ?, ?)
		ON CONFLICT (login) DO UPDATE SET api_key_digest = EXCLUDED.api_key_digest, role = EXCLUDED.role
	`, login, string(digest), role).Error
}

func (s *StepsContext) iAmAuthenticatedAs(login string) error {
	if err := s.iAuthenticateWithCorrectAPIKey(login); err != nil {
		return err
	}
	if s.response.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication as %q failed with status %d: %s", login, s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

// Authentication steps

func (s *StepsContext) iAuthenticateWithCorrectAPIKey(login string) error {
	return s.iAuthenticateWithAPIKey(login, s.apiKeys[login])
}

func (s *StepsContext) iAuthenticateWithAPIKey(login, apiKey string) error {
	reqURL := fmt.Sprintf("%s/authn/%s/authenticate", s.tc.ServerURL, url.PathEscape(login))
	req, err := http.NewRequest("POST", reqURL, strings.NewReader(apiKey))
	if err != nil {
		return err
	}

	if err := s.do(req); err != nil {
		return err
	}

	// If successful, keep the token for subsequent requests
	if s.response.StatusCode == http.StatusOK {
		var resp struct {
			Token string `json:"token"`
		}
		if err := json.Unmarshal(s.responseBody, &resp); err == nil {
			s.authToken = resp.Token
		}
	}

	return nil
}

// Response steps

func (s *StepsContext) theResponseStatusShouldBe(expectedStatus int) error {
	if s.response.StatusCode != expectedStatus {
		return fmt.Errorf("expected status %d, got %d: %s", expectedStatus, s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) iShouldReceiveAValidOperatorToken() error {
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.Unmarshal(s.responseBody, &resp); err != nil {
		return fmt.Errorf("failed to parse token response: %w", err)
	}

	if resp.Token == "" {
		return fmt.Errorf("missing 'token' field in response")
	}
	if len(strings.Split(resp.Token, ".")) != 3 {
		return fmt.Errorf("token is not a signed JWT: %q", resp.Token)
	}
	if !resp.ExpiresAt.After(time.Now()) {
		return fmt.Errorf("token already expired at %s", resp.ExpiresAt)
	}

	return nil
}

func (s *StepsContext) theResponseBodyShouldContain(expected string) error {
	if !strings.Contains(string(s.responseBody), expected) {
		return fmt.Errorf("expected body to contain %q, got %q", expected, string(s.responseBody))
	}
	return nil
}

// do sends the request with the current auth token and captures the
// response for later assertions.
func (s *StepsContext) do(req *http.Request) error {
	if s.authToken != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+s.authToken)
	}

	resp, err := s.tc.HTTPClient.Do(req)
	if err != nil {
		return err
	}

	s.response = resp
	s.responseBody, err = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return err
}
