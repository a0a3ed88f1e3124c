package ui

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/aegisid/aegisid/pkg/audit"
	"github.com/aegisid/aegisid/pkg/ingest"
	"github.com/aegisid/aegisid/pkg/model"
	"github.com/aegisid/aegisid/pkg/review"
	"github.com/aegisid/aegisid/pkg/server/store"
	"github.com/aegisid/aegisid/pkg/servermon"
)

// uploadLimitBytes bounds identity documents accepted through the form.
const uploadLimitBytes = 32 << 20

var workflowSteps = []string{
	"Parse the uploaded identity records",
	"Score risk with the configured scorer",
	"Clean and clamp the scorer output",
	"Split identities into risk bands",
	"Generate the hash-chained audit trail",
	"Publish the final review results",
}

// Home renders the landing page: what the pipeline does, the workflow
// steps, and live counts from the stores.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r.Context())

	identities := h.countOrDash(func() (int64, error) {
		return h.Identities.CountIdentities(store.IdentityFilter{})
	})
	runs := h.countOrDash(h.Runs.CountRuns)
	active := h.countOrDash(h.Runs.CountActiveRuns)

	policyLabel := "default"
	if _, version := h.Engine.CurrentPolicy(); version != nil {
		policyLabel = "v" + strconv.Itoa(*version)
	}

	steps := make([]gomponents.Node, 0, len(workflowSteps))
	for i, step := range workflowSteps {
		steps = append(steps, html.Div(
			html.Class("step"),
			html.Strong(gomponents.Text(strconv.Itoa(i+1)+". ")),
			gomponents.Text(step),
		))
	}

	renderHTML(w, http.StatusOK, appPage("Home", "home", op, nil,
		html.Div(html.Class("big-title"), gomponents.Text("AegisID — Machine Identity Risk Analysis")),
		html.P(html.Class("muted"), gomponents.Text(
			"AegisID reviews machine identities to detect potential security risks: "+
				"abnormal usage, exposure patterns, and missing safeguards like IP restrictions.")),

		html.Div(html.Class("metrics"),
			metricCard(identities, "Identities"),
			metricCard(runs, "Review runs"),
			metricCard(active, "Active runs"),
			metricCard(policyLabel, "Policy"),
		),

		html.H2(html.Class("section-title"), gomponents.Text("How a review runs")),
		html.Div(html.Class("grid"), gomponents.Group(steps)),

		html.Div(html.Class("card"),
			html.P(
				gomponents.Text("Upload identities on the "),
				html.A(html.Href("/ui/upload"), gomponents.Text("Upload")),
				gomponents.Text(" page, then follow the run to its results and audit file."),
			),
		),
	))
}

func (h *Handler) countOrDash(count func() (int64, error)) string {
	n, err := count()
	if err != nil {
		return "-"
	}
	return strconv.FormatInt(n, 10)
}

func metricCard(value, label string) gomponents.Node {
	return html.Div(
		html.Class("metric"),
		html.Div(html.Class("value"), gomponents.Text(value)),
		html.Div(html.Class("label"), gomponents.Text(label)),
	)
}

// UploadPage renders the identity upload form. After a plain upload it
// reports the upsert counts passed back through query parameters.
func (h *Handler) UploadPage(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r.Context())

	var banner gomponents.Node
	if created := r.URL.Query().Get("created"); created != "" {
		banner = html.Div(html.Class("card good"), html.P(gomponents.Text(fmt.Sprintf(
			"Upload complete: %s created, %s updated, %s skipped.",
			created, r.URL.Query().Get("updated"), r.URL.Query().Get("skipped")))))
	}

	renderHTML(w, http.StatusOK, appPage("Upload", "upload", op, nil,
		banner,
		html.Div(html.Class("card"),
			html.Form(
				html.Method("post"),
				html.Action("/ui/upload"),
				html.EncType("multipart/form-data"),
				html.Label(gomponents.Text("Identity document")),
				html.Input(html.Type("file"), html.Name("file"), html.Accept(".json,.csv"), html.Required()),
				html.Label(gomponents.Text("Source label")),
				html.Input(html.Type("text"), html.Name("source"), html.Placeholder(defaultSource)),
				html.Div(html.Class("check"),
					html.Input(html.Type("checkbox"), html.Name("run"), html.Value("1"), html.Checked()),
					html.Label(gomponents.Text("Run a review after upload")),
				),
				html.Button(html.Type("submit"), gomponents.Text("Upload")),
			),
		),
		html.Div(html.Class("card"),
			html.P(html.Class("muted"), gomponents.Text(
				`Accepted formats: a JSON array of identity objects, a {"api_keys": [...]} document, `+
					`or CSV with an identity_id column.`)),
		),
	))
}

const defaultSource = "upload"

// UploadSubmit ingests the posted document and, when asked, starts a
// review run over it.
func (h *Handler) UploadSubmit(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r.Context())

	if err := r.ParseMultipartForm(uploadLimitBytes); err != nil {
		renderHTML(w, http.StatusBadRequest, errorPage(op, "Upload failed", err.Error()))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		renderHTML(w, http.StatusBadRequest, errorPage(op, "Upload failed", "the upload needs a file"))
		return
	}
	defer file.Close()

	source := strings.TrimSpace(r.Form.Get("source"))
	if source == "" {
		source = defaultSource
	}

	var records []ingest.Record
	format := "json"
	if strings.EqualFold(filepath.Ext(header.Filename), ".csv") {
		format = "csv"
		records, err = ingest.ReadCSV(file)
	} else {
		records, err = ingest.ReadJSON(file)
	}
	if err != nil {
		renderHTML(w, http.StatusBadRequest, errorPage(op, "Upload failed", err.Error()))
		return
	}

	actor := ""
	if op != nil {
		actor = op.Login
	}

	normalized, rejected, err := ingest.NormalizeAll(records, source)
	if err != nil {
		servermon.IngestFailuresCount.WithLabelValues(format).Add(float64(len(rejected)))
		audit.Log(audit.IngestEvent{
			Actor:        actor,
			Source:       source,
			Format:       format,
			Success:      false,
			ErrorMessage: err.Error(),
		})
		renderHTML(w, http.StatusBadRequest, errorPage(op, "Upload failed", err.Error()))
		return
	}

	result, err := h.Identities.UpsertIdentities(normalized)
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Upload failed", err.Error()))
		return
	}

	servermon.IngestRecordsCount.WithLabelValues(format).Add(float64(len(normalized)))
	servermon.IngestFailuresCount.WithLabelValues(format).Add(float64(len(rejected)))
	audit.Log(audit.IngestEvent{
		Actor:   actor,
		Source:  source,
		Format:  format,
		Created: result.Created,
		Updated: result.Updated,
		Skipped: len(rejected),
		Success: true,
	})

	if r.Form.Get("run") == "" {
		http.Redirect(w, r, fmt.Sprintf("/ui/upload?created=%d&updated=%d&skipped=%d",
			result.Created, result.Updated, len(rejected)), http.StatusSeeOther)
		return
	}

	run, err := h.Engine.TriggerRun(r.Context(), review.TriggerOptions{
		Trigger: model.TriggerUpload,
		Source:  source,
	})
	if err != nil {
		code := http.StatusInternalServerError
		if errors.Is(err, review.ErrTooManyRuns) {
			code = http.StatusConflict
		}
		renderHTML(w, code, errorPage(op, "Review not started", err.Error()))
		return
	}
	http.Redirect(w, r, "/ui/runs/"+run.ID, http.StatusSeeOther)
}

// RunDetail renders one run with its stage table. While the run is still
// moving the page refreshes itself every two seconds.
func (h *Handler) RunDetail(w http.ResponseWriter, r *http.Request) {
	op := operatorFromContext(r.Context())
	id := mux.Vars(r)["id"]

	run, err := h.Runs.GetRun(id)
	if errors.Is(err, store.ErrRunNotFound) {
		renderHTML(w, http.StatusNotFound, errorPage(op, "Run not found", "No review run has id "+id+"."))
		return
	}
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Run unavailable", err.Error()))
		return
	}
	stages, err := h.Runs.GetRunStages(id)
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage(op, "Run unavailable", err.Error()))
		return
	}

	var head gomponents.Node
	if !run.Status.Terminal() {
		head = html.Meta(gomponents.Attr("http-equiv", "refresh"), html.Content("2"))
	}

	rows := make([]gomponents.Node, 0, len(stages))
	for _, stage := range stages {
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(stage.Stage.String())),
			html.Td(statusBadge(stage.Status)),
			html.Td(gomponents.Text(strconv.Itoa(stage.Attempt))),
			html.Td(gomponents.Text(formatTimePtr(stage.StartedAt))),
			html.Td(gomponents.Text(formatTimePtr(stage.FinishedAt))),
			html.Td(html.Class("muted"), gomponents.Text(stage.Error)),
		))
	}

	policyLabel := "default"
	if run.PolicyVersion != nil {
		policyLabel = "v" + strconv.Itoa(*run.PolicyVersion)
	}
	duration := "-"
	if run.StartedAt != nil {
		duration = run.Duration().Round(time.Millisecond).String()
	}

	var links gomponents.Node
	if run.Status.Terminal() {
		links = html.P(
			html.A(html.Class("btn"), html.Href("/ui/results?run="+run.ID), gomponents.Text("View results")),
			gomponents.Text(" "),
			html.A(html.Class("btn secondary"), html.Href("/ui/audit?run="+run.ID), gomponents.Text("Audit file")),
		)
	}

	var failure gomponents.Node
	if run.Error != "" {
		failure = html.Div(html.Class("card bad"), html.P(gomponents.Text(run.Error)))
	}

	renderHTML(w, http.StatusOK, appPage("Run "+shortID(run.ID), "results", op, head,
		html.Div(html.Class("card"),
			html.Table(
				kvRow("Status", statusBadge(run.Status)),
				kvText("Trigger", run.Trigger.String()),
				kvText("Scorer", run.Scorer),
				kvText("Source", orDash(run.Source)),
				kvText("Policy", policyLabel),
				kvText("Batch size", strconv.Itoa(run.BatchSize)),
				kvText("Parallelism", strconv.Itoa(run.Parallelism)),
				kvText("Started", formatTimePtr(run.StartedAt)),
				kvText("Finished", formatTimePtr(run.FinishedAt)),
				kvText("Duration", duration),
			),
		),
		failure,
		html.Div(html.Class("metrics"),
			metricCard(strconv.Itoa(run.TotalIdentities), "Identities"),
			metricCard(strconv.Itoa(run.Scored), "Scored"),
			metricCard(strconv.Itoa(run.Approved), "Approved"),
			metricCard(strconv.Itoa(run.Flagged), "Flagged"),
			metricCard(strconv.Itoa(run.Rotations), "Rotations"),
		),
		html.H2(html.Class("section-title"), gomponents.Text("Stages")),
		html.Table(
			html.THead(html.Tr(
				html.Th(gomponents.Text("Stage")),
				html.Th(gomponents.Text("Status")),
				html.Th(gomponents.Text("Attempt")),
				html.Th(gomponents.Text("Started")),
				html.Th(gomponents.Text("Finished")),
				html.Th(gomponents.Text("Error")),
			)),
			html.TBody(gomponents.Group(rows)),
		),
		links,
	))
}

func kvRow(label string, value gomponents.Node) gomponents.Node {
	return html.Tr(html.Td(html.Class("muted"), gomponents.Text(label)), html.Td(value))
}

func kvText(label, value string) gomponents.Node {
	return kvRow(label, gomponents.Text(value))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
