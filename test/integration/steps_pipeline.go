package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

// runWaitTimeout bounds how long a scenario waits for a triggered run to
// reach a terminal state.
const runWaitTimeout = 30 * time.Second

func (s *StepsContext) registerPipelineSteps(sc *godog.ScenarioContext) {
	// Ingest steps
	sc.Step(`^I upload the following identities as "([^"]*)":$`, s.iUploadIdentities)
	sc.Step(`^I upload the following CSV identities as "([^"]*)":$`, s.iUploadCSVIdentities)
	sc.Step(`^the upload should report (\d+) created and (\d+) updated$`, s.theUploadShouldReport)
	sc.Step(`^identity "([^"]*)" should exist with source "([^"]*)"$`, s.identityShouldExistWithSource)

	// Run steps
	sc.Step(`^I trigger a review run for source "([^"]*)"$`, s.iTriggerAReviewRun)
	sc.Step(`^the run should finish with status "([^"]*)"$`, s.theRunShouldFinishWithStatus)
	sc.Step(`^the run should have (\d+) findings?$`, s.theRunShouldHaveFindings)
	sc.Step(`^the finding for "([^"]*)" should have decision "([^"]*)"$`, s.theFindingShouldHaveDecision)

	// Policy steps
	sc.Step(`^I apply the following review policy:$`, s.iApplyReviewPolicy)
	sc.Step(`^the applied policy version should be at least (\d+)$`, s.theAppliedPolicyVersionShouldBeAtLeast)

	// Audit steps
	sc.Step(`^the audit chain for the run should verify with (\d+) records$`, s.theAuditChainShouldVerify)
	sc.Step(`^the audit export should contain (\d+) findings?$`, s.theAuditExportShouldContainFindings)
}

// Ingest steps

func (s *StepsContext) iUploadIdentities(source string, doc *godog.DocString) error {
	return s.upload(source, "application/json", doc.Content)
}

func (s *StepsContext) iUploadCSVIdentities(source string, doc *godog.DocString) error {
	return s.upload(source, "text/csv", doc.Content)
}

func (s *StepsContext) upload(source, contentType, body string) error {
	reqURL := fmt.Sprintf("%s/identities?source=%s", s.tc.ServerURL, source)
	req, err := http.NewRequest("POST", reqURL, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	return s.do(req)
}

func (s *StepsContext) theUploadShouldReport(created, updated int) error {
	var resp struct {
		Created int `json:"created"`
		Updated int `json:"updated"`
	}
	if err := json.Unmarshal(s.responseBody, &resp); err != nil {
		return fmt.Errorf("failed to parse upload response: %w", err)
	}
	if resp.Created != created || resp.Updated != updated {
		return fmt.Errorf("expected %d created and %d updated, got %d and %d: %s",
			created, updated, resp.Created, resp.Updated, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) identityShouldExistWithSource(externalID, source string) error {
	var count int64
	err := s.tc.DB.Raw(
		`SELECT COUNT(*) FROM identities WHERE external_id = ? AND source = ?`,
		externalID, source,
	).Scan(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("identity %s with source %s does not exist", externalID, source)
	}
	return nil
}

// Run steps

func (s *StepsContext) iTriggerAReviewRun(source string) error {
	body := fmt.Sprintf(`{"source": %q}`, source)
	req, err := http.NewRequest("POST", s.tc.ServerURL+"/runs", strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	if err := s.do(req); err != nil {
		return err
	}

	if s.response.StatusCode == http.StatusAccepted {
		var run struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(s.responseBody, &run); err != nil {
			return fmt.Errorf("failed to parse run response: %w", err)
		}
		s.runID = run.ID
	}
	return nil
}

func (s *StepsContext) theRunShouldFinishWithStatus(expected string) error {
	if s.runID == "" {
		return fmt.Errorf("no run was triggered")
	}

	deadline := time.Now().Add(runWaitTimeout)
	for time.Now().Before(deadline) {
		req, err := http.NewRequest("GET", s.tc.ServerURL+"/runs/"+s.runID, nil)
		if err != nil {
			return err
		}
		if err := s.do(req); err != nil {
			return err
		}

		var run struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		}
		if err := json.Unmarshal(s.responseBody, &run); err != nil {
			return fmt.Errorf("failed to parse run: %w", err)
		}

		switch run.Status {
		case expected:
			return nil
		case "succeeded", "failed", "cancelled":
			return fmt.Errorf("run finished with status %q (error %q), expected %q", run.Status, run.Error, expected)
		}

		time.Sleep(200 * time.Millisecond)
	}

	return fmt.Errorf("run %s did not finish within %v", s.runID, runWaitTimeout)
}

type findingJSON struct {
	Decision string   `json:"decision"`
	Reasons  []string `json:"reasons"`
	Identity *struct {
		ExternalID string `json:"external_id"`
	} `json:"identity"`
}

func (s *StepsContext) fetchFindings() ([]findingJSON, error) {
	req, err := http.NewRequest("GET", s.tc.ServerURL+"/runs/"+s.runID+"/findings", nil)
	if err != nil {
		return nil, err
	}
	if err := s.do(req); err != nil {
		return nil, err
	}
	if s.response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("findings request failed with status %d: %s", s.response.StatusCode, string(s.responseBody))
	}

	var resp struct {
		Findings []findingJSON `json:"findings"`
	}
	if err := json.Unmarshal(s.responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse findings: %w", err)
	}
	return resp.Findings, nil
}

func (s *StepsContext) theRunShouldHaveFindings(expected int) error {
	findings, err := s.fetchFindings()
	if err != nil {
		return err
	}
	if len(findings) != expected {
		return fmt.Errorf("expected %d findings, got %d", expected, len(findings))
	}
	return nil
}

func (s *StepsContext) theFindingShouldHaveDecision(externalID, decision string) error {
	findings, err := s.fetchFindings()
	if err != nil {
		return err
	}

	for _, f := range findings {
		if f.Identity == nil || f.Identity.ExternalID != externalID {
			continue
		}
		if f.Decision != decision {
			return fmt.Errorf("finding for %s has decision %q, expected %q (reasons: %v)",
				externalID, f.Decision, decision, f.Reasons)
		}
		return nil
	}
	return fmt.Errorf("no finding for identity %s", externalID)
}

// Policy steps

func (s *StepsContext) iApplyReviewPolicy(policyYAML *godog.DocString) error {
	req, err := http.NewRequest("PUT", s.tc.ServerURL+"/policy", strings.NewReader(policyYAML.Content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-yaml")

	if err := s.do(req); err != nil {
		return err
	}
	if s.response.StatusCode != http.StatusOK && s.response.StatusCode != http.StatusCreated {
		return fmt.Errorf("policy apply failed with status %d: %s", s.response.StatusCode, string(s.responseBody))
	}
	return nil
}

func (s *StepsContext) theAppliedPolicyVersionShouldBeAtLeast(minVersion int) error {
	var resp struct {
		Version int `json:"version"`
	}
	if err := json.Unmarshal(s.responseBody, &resp); err != nil {
		return fmt.Errorf("failed to parse policy response: %w", err)
	}
	if resp.Version < minVersion {
		return fmt.Errorf("expected policy version >= %d, got %d", minVersion, resp.Version)
	}
	return nil
}

// Audit steps

func (s *StepsContext) theAuditChainShouldVerify(records int) error {
	req, err := http.NewRequest("GET", s.tc.ServerURL+"/runs/"+s.runID+"/audit/verify", nil)
	if err != nil {
		return err
	}
	if err := s.do(req); err != nil {
		return err
	}
	if s.response.StatusCode != http.StatusOK {
		return fmt.Errorf("verify request failed with status %d: %s", s.response.StatusCode, string(s.responseBody))
	}

	var report struct {
		Valid   bool `json:"valid"`
		Records int  `json:"records"`
	}
	if err := json.Unmarshal(s.responseBody, &report); err != nil {
		return fmt.Errorf("failed to parse verification report: %w", err)
	}
	if !report.Valid {
		return fmt.Errorf("audit chain did not verify: %s", string(s.responseBody))
	}
	if report.Records != records {
		return fmt.Errorf("expected %d chain records, got %d", records, report.Records)
	}
	return nil
}

func (s *StepsContext) theAuditExportShouldContainFindings(expected int) error {
	req, err := http.NewRequest("GET", s.tc.ServerURL+"/runs/"+s.runID+"/audit/export", nil)
	if err != nil {
		return err
	}
	if err := s.do(req); err != nil {
		return err
	}
	if s.response.StatusCode != http.StatusOK {
		return fmt.Errorf("export request failed with status %d: %s", s.response.StatusCode, string(s.responseBody))
	}

	if disposition := s.response.Header.Get("Content-Disposition"); !strings.Contains(disposition, "aegisid_audit.json") {
		return fmt.Errorf("unexpected Content-Disposition %q", disposition)
	}

	var doc struct {
		Findings []json.RawMessage `json:"findings"`
		Chain    struct {
			HeadHash string `json:"head_hash"`
			Records  int    `json:"records"`
		} `json:"chain"`
	}
	if err := json.Unmarshal(s.responseBody, &doc); err != nil {
		return fmt.Errorf("failed to parse export document: %w", err)
	}
	if len(doc.Findings) != expected {
		return fmt.Errorf("expected %d findings in export, got %d", expected, len(doc.Findings))
	}
	if doc.Chain.HeadHash == "" {
		return fmt.Errorf("export document is missing the chain head hash")
	}
	return nil
}
