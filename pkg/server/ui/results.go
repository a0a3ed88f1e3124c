package ui

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	gomponents "maragu.dev/gomponents"
	data "maragu.dev/gomponents-datastar"
	html "maragu.dev/gomponents/html"

	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/server/store"
)

// auditDownloadName is the filename browsers save the audit document as.
const auditDownloadName = "aegisid_audit.json"

// runPickerLimit bounds the run list on the picker pages.
const runPickerLimit = 20

// Results renders a run's findings: a score histogram and one card per
// finding with the recommendation for its band. Without a run parameter
// it lists recent runs to pick from.
func (h *Handler) Results(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r.Context())

	runID := r.URL.Query().Get("run")
	if runID == "" {
		h.renderRunPicker(w, op, "Results", "results", "/ui/results")
		return
	}

	run, err := h.Runs.GetRun(runID)
	if errors.Is(err, store.ErrRunNotFound) {
		renderHTML(w, http.StatusNotFound, errorPage(op, "Run not found", "No review run has id "+runID+"."))
		return
	}
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Results unavailable", err.Error()))
		return
	}
	findings, err := h.Findings.ListFindings(runID, "")
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Results unavailable", err.Error()))
		return
	}

	cards := make([]gomponents.Node, 0, len(findings))
	for i := range findings {
		cards = append(cards, findingCard(&findings[i]))
	}
	var empty gomponents.Node
	if len(findings) == 0 {
		empty = html.Div(html.Class("card"),
			html.P(html.Class("muted"), gomponents.Text("This run produced no findings yet.")))
	}

	renderHTML(w, http.StatusOK, appPage("Results", "results", op, nil,
		html.Div(html.Class("card"),
			html.P(
				gomponents.Text(fmt.Sprintf("%d findings from run ", len(findings))),
				html.A(html.Class("mono"), html.Href("/ui/runs/"+run.ID), gomponents.Text(shortID(run.ID))),
				gomponents.Text(" "),
				statusBadge(run.Status),
			),
		),
		scoreHistogram(findings),
		html.Div(
			data.Signals(map[string]any{"q": ""}),
			html.Div(html.Class("card"),
				html.Label(gomponents.Text("Quick filter")),
				html.Input(html.Type("text"), data.Bind("q"), html.Placeholder("Filter by identity name or decision")),
			),
			gomponents.Group(cards),
		),
		empty,
	))
}

func (h *Handler) renderRunPicker(w http.ResponseWriter, op *identity.Operator, title, active, hrefBase string) {
	runs, err := h.Runs.ListRuns(runPickerLimit, 0)
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, title+" unavailable", err.Error()))
		return
	}
	if len(runs) == 0 {
		renderHTML(w, http.StatusOK, appPage(title, active, op, nil,
			html.Div(html.Class("card"),
				html.P(html.Class("muted"), gomponents.Text("No review runs yet.")),
				html.P(html.A(html.Href("/ui/upload"), gomponents.Text("Upload identities to start one."))),
			),
		))
		return
	}

	rows := make([]gomponents.Node, 0, len(runs))
	for _, run := range runs {
		rows = append(rows, html.Tr(
			html.Td(html.A(html.Class("mono"), html.Href(hrefBase+"?run="+run.ID), gomponents.Text(shortID(run.ID)))),
			html.Td(statusBadge(run.Status)),
			html.Td(gomponents.Text(run.Trigger.String())),
			html.Td(gomponents.Text(orDash(run.Source))),
			html.Td(gomponents.Text(strconv.Itoa(run.Scored))),
			html.Td(gomponents.Text(strconv.Itoa(run.Flagged+run.Rotations))),
			html.Td(gomponents.Text(formatTime(run.CreatedAt))),
		))
	}

	renderHTML(w, http.StatusOK, appPage(title, active, op, nil,
		html.P(html.Class("muted"), gomponents.Text("Pick a run.")),
		html.Table(
			html.THead(html.Tr(
				html.Th(gomponents.Text("Run")),
				html.Th(gomponents.Text("Status")),
				html.Th(gomponents.Text("Trigger")),
				html.Th(gomponents.Text("Source")),
				html.Th(gomponents.Text("Scored")),
				html.Th(gomponents.Text("Flagged")),
				html.Th(gomponents.Text("Created")),
			)),
			html.TBody(gomponents.Group(rows)),
		),
	))
}

// scoreHistogram buckets finding scores into ten bins of width ten. A
// score of 100 lands in the top bin.
func scoreHistogram(findings []model.Finding) gomponents.Node {
	if len(findings) == 0 {
		return nil
	}

	var counts [10]int
	for _, f := range findings {
		bin := f.RiskScore / 10
		if bin > 9 {
			bin = 9
		}
		counts[bin]++
	}
	max := 1
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	bins := make([]gomponents.Node, 0, len(counts))
	for i, c := range counts {
		label := fmt.Sprintf("%d-%d", i*10, i*10+9)
		if i == 9 {
			label = "90-100"
		}
		bins = append(bins, html.Div(
			html.Class("bin"),
			html.Div(html.Class("count"), gomponents.Text(strconv.Itoa(c))),
			html.Div(html.Class("bar"), html.Style(fmt.Sprintf("height:%d%%", c*100/max))),
			html.Div(html.Class("range"), gomponents.Text(label)),
		))
	}

	return html.Div(html.Class("card"),
		html.H2(html.Class("section-title"), gomponents.Text("Risk score distribution")),
		html.Div(html.Class("chart"), gomponents.Group(bins)),
	)
}

func findingCard(f *model.Finding) gomponents.Node {
	name := f.IdentityID
	details := []gomponents.Node{}
	if f.Identity != nil {
		if f.Identity.Name != "" {
			name = f.Identity.Name
		}
		restriction := "no IP restriction"
		if f.Identity.IPRestriction {
			restriction = "IP restricted"
		}
		details = append(details, html.P(html.Class("muted"), gomponents.Text(fmt.Sprintf(
			"%s, %d uses, %s", f.Identity.Kind.String(), f.Identity.UsageCount, restriction))))
	}

	var reasons gomponents.Node
	if list := f.ReasonList(); len(list) > 0 {
		items := make([]gomponents.Node, 0, len(list))
		for _, reason := range list {
			items = append(items, html.Li(gomponents.Text(reason)))
		}
		reasons = html.Ul(html.Class("reasons"), gomponents.Group(items))
	}

	return html.Div(
		html.Class("card finding "+bandClass(f.Band)),
		data.Show(containsExpr(name+" "+f.Decision.String())),
		html.Div(
			html.Strong(gomponents.Text(name)),
			gomponents.Text(" "),
			html.Span(html.Class("badge "+f.Band.String()), gomponents.Text(f.Decision.String())),
			gomponents.Text(" "),
			html.Span(html.Class("muted"), gomponents.Text(fmt.Sprintf("risk %d, scored by %s", f.RiskScore, f.ScoredBy))),
		),
		gomponents.Group(details),
		reasons,
		recommendation(f.Band),
	)
}

// recommendation is the per-band guidance block shown under a finding.
func recommendation(band identity.Band) gomponents.Node {
	switch band {
	case identity.BandHigh:
		return html.Div(
			html.Strong(gomponents.Text("Immediate Rotation Required")),
			html.Ul(
				html.Li(gomponents.Text("The key is likely exposed or unsafe.")),
				html.Li(gomponents.Text("High volume usage without IP restrictions is dangerous.")),
				html.Li(gomponents.Text("Keys with names like live or prod attract attackers.")),
				html.Li(gomponents.Text("Rotate immediately and enable IP restriction.")),
			),
		)
	case identity.BandMedium:
		return html.Div(
			html.Strong(gomponents.Text("Key Should Be Reviewed")),
			html.Ul(
				html.Li(gomponents.Text("Monitor usage trends.")),
				html.Li(gomponents.Text("Add an IP restriction.")),
				html.Li(gomponents.Text("Validate service integrations.")),
			),
		)
	default:
		return html.P(gomponents.Text("Low Risk — No immediate vulnerabilities detected."))
	}
}

// AuditFile renders a run's chain verification report with the download
// link. Without a run parameter it lists recent runs to pick from.
func (h *Handler) AuditFile(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r.Context())

	runID := r.URL.Query().Get("run")
	if runID == "" {
		h.renderRunPicker(w, op, "Audit File", "audit", "/ui/audit")
		return
	}

	run, err := h.Runs.GetRun(runID)
	if errors.Is(err, store.ErrRunNotFound) {
		renderHTML(w, http.StatusNotFound, errorPage(op, "Run not found", "No review run has id "+runID+"."))
		return
	}
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Audit unavailable", err.Error()))
		return
	}
	report, err := h.Chain.Verify(r.Context(), runID)
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Audit unavailable", err.Error()))
		return
	}

	verdict := html.Div(html.Class("card good"),
		html.Strong(gomponents.Text("Chain verified")),
		html.P(gomponents.Text(fmt.Sprintf("All %d records link cleanly from the genesis hash.", report.Records))),
	)
	if !report.Valid {
		verdict = html.Div(html.Class("card bad"),
			html.Strong(gomponents.Text(fmt.Sprintf("Chain diverged at record %d", report.DivergenceSeq))),
			html.P(gomponents.Text("Records from that sequence on cannot be trusted.")),
		)
	}

	renderHTML(w, http.StatusOK, appPage("Audit File", "audit", op, nil,
		html.Div(html.Class("card"),
			html.P(
				gomponents.Text("Audit trail for run "),
				html.A(html.Class("mono"), html.Href("/ui/runs/"+run.ID), gomponents.Text(shortID(run.ID))),
				gomponents.Text(" "),
				statusBadge(run.Status),
			),
		),
		verdict,
		html.Div(html.Class("metrics"),
			metricCard(strconv.Itoa(report.Records), "Chain records"),
			metricCard(strconv.Itoa(run.Scored), "Scored"),
			metricCard(strconv.Itoa(run.Rotations), "Rotations"),
		),
		html.Div(html.Class("card"),
			html.Label(gomponents.Text("Head hash")),
			html.Div(html.Class("mono"), gomponents.Text(report.HeadHash)),
		),
		html.H2(html.Class("section-title"), gomponents.Text("Download Audit File")),
		html.P(html.A(
			html.Class("btn"),
			html.Href("/ui/audit/download?run="+run.ID),
			gomponents.Text("Download Full Audit JSON"),
		)),
	))
}

// AuditDownload streams the audit document as an attachment.
func (h *Handler) AuditDownload(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r.Context())

	runID := r.URL.Query().Get("run")
	if runID == "" {
		http.Redirect(w, r, "/ui/audit", http.StatusSeeOther)
		return
	}
	if _, err := h.Runs.GetRun(runID); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			renderHTML(w, http.StatusNotFound, errorPage(op, "Run not found", "No review run has id "+runID+"."))
			return
		}
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Audit unavailable", err.Error()))
		return
	}

	doc, err := h.Chain.Export(r.Context(), runID)
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Audit unavailable", err.Error()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+auditDownloadName+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	_, _ = w.Write(doc)
}
