package ui

import (
	"context"
	"strconv"
	"strings"
	"time"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/aegisid/aegisid/pkg/identity"
	"github.com/aegisid/aegisid/pkg/model"
)

type navItem struct {
	Label string
	Href  string
	Key   string
}

var navItems = []navItem{
	{Label: "Home", Href: "/ui", Key: "home"},
	{Label: "Upload", Href: "/ui/upload", Key: "upload"},
	{Label: "Results", Href: "/ui/results", Key: "results"},
	{Label: "Audit File", Href: "/ui/audit", Key: "audit"},
}

// appPage is the shared dashboard frame: sidebar navigation, topbar with
// the signed-in operator, and the page body. head carries optional extra
// head nodes such as the refresh tag on active run pages.
func appPage(title, active string, op *identity.Operator, head gomponents.Node, body ...gomponents.Node) gomponents.Node {
	nav := make([]gomponents.Node, 0, len(navItems))
	for _, item := range navItems {
		className := ""
		if item.Key == active {
			className = "active"
		}
		nav = append(nav, html.A(html.Href(item.Href), html.Class(className), gomponents.Text(item.Label)))
	}

	operatorLabel := "unknown"
	if op != nil {
		operatorLabel = op.Login + " (" + op.Role + ")"
	}

	return html.HTML(
		html.Lang("en"),
		html.Head(
			html.Meta(html.Charset("utf-8")),
			html.Meta(html.Name("viewport"), html.Content("width=device-width, initial-scale=1")),
			html.TitleEl(gomponents.Text(title+" | AegisID")),
			html.Link(html.Rel("stylesheet"), html.Href("/ui/static/app.css")),
			html.Script(
				html.Type("module"),
				html.Src("https://cdn.jsdelivr.net/gh/starfederation/datastar@1.0.0-RC.6/bundles/datastar.js"),
			),
			head,
		),
		html.Body(
			html.Div(
				html.Class("layout"),
				html.Aside(
					html.Class("sidebar"),
					html.Div(html.Class("brand"), gomponents.Text("AegisID")),
					html.Nav(gomponents.Group(nav)),
					html.Div(html.Class("caption"), gomponents.Text("Secure. Intelligent. Automated.")),
				),
				html.Main(
					html.Class("content"),
					html.Div(
						html.Class("topbar"),
						html.H1(html.Class("section-title"), gomponents.Text(title)),
						html.Div(
							html.Span(html.Class("muted"), gomponents.Text(operatorLabel+" ")),
							html.Form(
								html.Method("post"),
								html.Action("/ui/logout"),
								html.Style("display:inline"),
								html.Button(html.Type("submit"), html.Class("secondary"), gomponents.Text("Sign out")),
							),
						),
					),
					gomponents.Group(body),
				),
			),
		),
	)
}

func errorPage(op *identity.Operator, title, message string) gomponents.Node {
	return appPage(title, "", op, nil,
		html.Div(
			html.Class("card bad"),
			html.P(gomponents.Text(message)),
			html.P(html.A(html.Href("/ui"), gomponents.Text("Back to home"))),
		),
	)
}

func operatorFromContext(ctx context.Context) *identity.Operator {
	op, _ := identity.Get(ctx)
	return op
}

func formatTime(ts time.Time) string {
	if ts.IsZero() {
		return "-"
	}
	return ts.Format("2006-01-02 15:04:05")
}

func formatTimePtr(ts *time.Time) string {
	if ts == nil {
		return "-"
	}
	return formatTime(*ts)
}

func statusBadge(status model.RunStatus) gomponents.Node {
	return html.Span(html.Class("badge "+status.String()), gomponents.Text(status.String()))
}

func bandClass(band identity.Band) string {
	switch band {
	case identity.BandHigh:
		return "bad"
	case identity.BandMedium:
		return "warn"
	default:
		return "good"
	}
}

func containsExpr(value string) string {
	lower := strings.ToLower(value)
	return "$q === '' || " + strconv.Quote(lower) + ".includes($q.toLowerCase())"
}
