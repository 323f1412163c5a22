package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"headline-vol/internal/domain"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	recentDays    = 60
	modelVersions = 20
	fetchTimeout  = 5 * time.Second
)

type PredictionReader interface {
	Recent(ctx context.Context, limit int) ([]domain.ScoringRecord, error)
}

type VersionLister interface {
	ListVersions(ctx context.Context, modelKey string, limit int) ([]domain.ModelArtifact, error)
}

type Services struct {
	Predictions PredictionReader
	Models      VersionLister
	ModelKey    string
	Username    string
}

type tab int

const (
	tabPredictions tab = iota
	tabModels
)

type recordsMsg struct {
	records []domain.ScoringRecord
	err     error
}

type versionsMsg struct {
	versions []domain.ModelArtifact
	err      error
}

// AppModel is the dashboard served over SSH: recent daily predictions and
// registered model versions.
type AppModel struct {
	svc       Services
	active    tab
	records   []domain.ScoringRecord
	versions  []domain.ModelArtifact
	predTable table.Model
	verTable  table.Model
	err       error
	loadedAt  time.Time
	width     int
	height    int
	now       func() time.Time
}

func NewAppModel(svc Services) *AppModel {
	pred := table.New(
		table.WithColumns([]table.Column{
			{Title: "Date", Width: 10},
			{Title: "N", Width: 3},
			{Title: "Mean", Width: 6},
			{Title: "Maj", Width: 4},
			{Title: "Max", Width: 6},
			{Title: "Actual", Width: 6},
			{Title: "Model", Width: 6},
		}),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	pred.SetStyles(tableStyles())

	ver := table.New(
		table.WithColumns([]table.Column{
			{Title: "Version", Width: 7},
			{Title: "Stage", Width: 10},
			{Title: "Trained", Width: 16},
			{Title: "Test AUC", Width: 8},
			{Title: "Features", Width: 10},
		}),
		table.WithHeight(12),
	)
	ver.SetStyles(tableStyles())

	return &AppModel{svc: svc, predTable: pred, verTable: ver, now: time.Now}
}

func (m *AppModel) SetSize(width, height int) {
	m.width = width
	m.height = height
	h := height - 10
	if h < 3 {
		h = 3
	}
	m.predTable.SetHeight(h)
	m.verTable.SetHeight(h)
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadRecords, m.loadVersions)
}

func (m *AppModel) loadRecords() tea.Msg {
	if m.svc.Predictions == nil {
		return recordsMsg{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	recs, err := m.svc.Predictions.Recent(ctx, recentDays)
	return recordsMsg{records: recs, err: err}
}

func (m *AppModel) loadVersions() tea.Msg {
	if m.svc.Models == nil {
		return versionsMsg{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()
	vs, err := m.svc.Models.ListVersions(ctx, m.svc.ModelKey, modelVersions)
	return versionsMsg{versions: vs, err: err}
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil
	case recordsMsg:
		m.err = msg.err
		if msg.err == nil {
			m.records = msg.records
			m.predTable.SetRows(predictionRows(msg.records))
			m.loadedAt = m.now()
		}
		return m, nil
	case versionsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.versions = msg.versions
		m.verTable.SetRows(versionRows(msg.versions))
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, tea.Batch(m.loadRecords, m.loadVersions)
		case "tab":
			m.switchTab()
			return m, nil
		}
	}

	var cmd tea.Cmd
	if m.active == tabModels {
		m.verTable, cmd = m.verTable.Update(msg)
	} else {
		m.predTable, cmd = m.predTable.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) switchTab() {
	if m.active == tabPredictions {
		m.active = tabModels
		m.predTable.Blur()
		m.verTable.Focus()
		return
	}
	m.active = tabPredictions
	m.verTable.Blur()
	m.predTable.Focus()
}

func (m *AppModel) View() string {
	var b strings.Builder

	user := m.svc.Username
	if user == "" {
		user = "unknown"
	}
	b.WriteString(titleStyle.Render("headline-vol") + " " + helpStyle.Render("signed in as "+user))
	b.WriteString("\n\n")
	b.WriteString(m.tabs())
	b.WriteString("\n")

	if m.active == tabModels {
		b.WriteString(m.verTable.View())
	} else {
		body := m.predTable.View()
		if detail := m.selectedDetail(); detail != "" {
			body = lipgloss.JoinHorizontal(lipgloss.Top, body, " ", detailStyle.Render(detail))
		}
		b.WriteString(body)
	}
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("error: "+m.err.Error()) + "\n")
	}
	status := "tab switch view • r refresh • q quit"
	if !m.loadedAt.IsZero() {
		status = "updated " + m.loadedAt.UTC().Format("15:04:05") + " UTC • " + status
	}
	b.WriteString(helpStyle.Render(status))
	return b.String()
}

func (m *AppModel) tabs() string {
	names := []string{"Predictions", "Models"}
	out := make([]string, len(names))
	for i, n := range names {
		if tab(i) == m.active {
			out[i] = activeTabStyle.Render(n)
		} else {
			out[i] = tabStyle.Render(n)
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, out...)
}

func (m *AppModel) selectedDetail() string {
	if len(m.records) == 0 {
		return ""
	}
	i := m.predTable.Cursor()
	if i < 0 || i >= len(m.records) {
		return ""
	}
	r := m.records[i]
	lines := []string{
		r.Date,
		fmt.Sprintf("mean  %.3f %s", r.PredictionMeanProba, arrow(r.PredictionMeanClass)),
		fmt.Sprintf("maj   %s", arrow(r.PredictionMajorityVote)),
		fmt.Sprintf("max   %.3f %s", r.PredictionMaxProba, arrow(r.PredictionMaxClass)),
		fmt.Sprintf("heads %d", r.NumHeadlines),
	}
	if r.Error != "" {
		lines = append(lines, errorStyle.Render(r.Error))
	}
	return strings.Join(lines, "\n")
}

func predictionRows(recs []domain.ScoringRecord) []table.Row {
	rows := make([]table.Row, len(recs))
	for i, r := range recs {
		actual := "-"
		if r.TrueLabel != nil {
			actual = strconv.Itoa(*r.TrueLabel)
		}
		rows[i] = table.Row{
			r.Date,
			strconv.Itoa(r.NumHeadlines),
			fmt.Sprintf("%.3f", r.PredictionMeanProba),
			strconv.Itoa(r.PredictionMajorityVote),
			fmt.Sprintf("%.3f", r.PredictionMaxProba),
			actual,
			"v" + r.ModelVersion,
		}
	}
	return rows
}

func versionRows(vs []domain.ModelArtifact) []table.Row {
	rows := make([]table.Row, len(vs))
	for i, v := range vs {
		auc := "-"
		var metrics map[string]float64
		if err := json.Unmarshal([]byte(v.MetricsJSON), &metrics); err == nil {
			if val, ok := metrics["test_daily_mean_proba_roc_auc"]; ok {
				auc = fmt.Sprintf("%.3f", val)
			}
		}
		rows[i] = table.Row{
			strconv.Itoa(v.Version),
			string(v.Stage),
			v.TrainedAt.UTC().Format("2006-01-02 15:04"),
			auc,
			v.FeatureSpecVersion,
		}
	}
	return rows
}

func arrow(class int) string {
	if class == 1 {
		return upStyle.Render("up")
	}
	return downStyle.Render("down")
}
