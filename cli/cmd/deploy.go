package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"quickdeploy/cli/api"
	"quickdeploy/cli/style"
)

var deployCmd = &cobra.Command{
	Use:   "deploy <owner/name>",
	Short: "Deploy a GitHub repository to the website bucket",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeploy,
}

func init() {
	rootCmd.AddCommand(deployCmd)
}

func runDeploy(cmd *cobra.Command, args []string) error {
	repo := args[0]
	if !strings.Contains(repo, "/") {
		return fmt.Errorf("repository must be owner/name, got %q", repo)
	}

	m := newDeployModel(repo)
	p := tea.NewProgram(m)
	finalModel, err := p.Run()
	if err != nil {
		return err
	}

	dm := finalModel.(deployModel)
	if dm.failed {
		return fmt.Errorf("deploy failed")
	}
	return nil
}

// --- Messages ---

type stepUpdate struct{ phase string }
type logLine struct{ line string }
type deployFinished struct {
	result *api.Result
	err    error
}
type deployStarted struct {
	ch   chan tea.Msg
	live bool
}

// --- Model ---

const maxLogLines = 6

var pipelinePhases = []string{"validating", "fetching", "building", "listing", "clearing", "uploading", "finalizing"}

type stepState struct {
	name   string
	status string // "pending" | "running" | "completed" | "failed"
}

type deployModel struct {
	repo      string
	spinner   spinner.Model
	steps     []stepState
	logs      []string
	status    string // "connecting" | "deploying" | "completed" | "failed"
	live      bool
	url       string
	errMsg    string
	failed    bool
	startTime time.Time
	eventCh   chan tea.Msg
}

func newDeployModel(repo string) deployModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(style.Primary)

	steps := make([]stepState, len(pipelinePhases))
	for i, name := range pipelinePhases {
		steps[i] = stepState{name: name, status: "pending"}
	}

	return deployModel{
		repo:      repo,
		spinner:   s,
		steps:     steps,
		status:    "connecting",
		startTime: time.Now(),
	}
}

func (m deployModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		connectAndDeploy(m.repo),
	)
}

func (m deployModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The server keeps going; quitting only stops watching.
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case deployStarted:
		m.status = "deploying"
		m.live = msg.live
		m.eventCh = msg.ch
		return m, waitForEvent(m.eventCh)

	case stepUpdate:
		m.advance(msg.phase)
		return m, waitForEvent(m.eventCh)

	case logLine:
		m.logs = append(m.logs, msg.line)
		if len(m.logs) > maxLogLines {
			m.logs = m.logs[len(m.logs)-maxLogLines:]
		}
		return m, waitForEvent(m.eventCh)

	case deployFinished:
		if msg.err != nil {
			m.fail(msg.err.Error())
			return m, tea.Quit
		}
		if !msg.result.Success {
			m.fail(msg.result.Error)
			return m, tea.Quit
		}
		for i := range m.steps {
			m.steps[i].status = "completed"
		}
		m.status = "completed"
		m.url = msg.result.URL
		return m, tea.Quit
	}

	return m, nil
}

// advance marks phase running and everything before it completed.
func (m *deployModel) advance(phase string) {
	reached := false
	for i := range m.steps {
		switch {
		case m.steps[i].name == phase:
			m.steps[i].status = "running"
			reached = true
		case !reached:
			m.steps[i].status = "completed"
		}
	}
}

func (m *deployModel) fail(msg string) {
	for i := range m.steps {
		if m.steps[i].status == "running" {
			m.steps[i].status = "failed"
		}
	}
	m.status = "failed"
	m.errMsg = msg
	m.failed = true
}

func (m deployModel) View() string {
	var b strings.Builder

	b.WriteString(style.Banner.Render("▲ QUICKDEPLOY"))
	b.WriteString("\n")

	b.WriteString(style.Key.Render("Repository"))
	b.WriteString(style.Bold.Render(m.repo))
	b.WriteString("\n\n")

	for _, step := range m.steps {
		name := padRight(step.name, 12)

		switch step.status {
		case "pending":
			b.WriteString(fmt.Sprintf("  %s %s\n", style.DimText.Render(name), style.DimText.Render("waiting")))
		case "running":
			b.WriteString(fmt.Sprintf("  %s %s %s\n", style.StepRunning.Render(name), m.spinner.View(), style.StepRunning.Render("running")))
		case "completed":
			b.WriteString(fmt.Sprintf("  %s %s\n", style.StepDone.Render(name), style.StepDone.Render("✓ done")))
		case "failed":
			b.WriteString(fmt.Sprintf("  %s %s\n", style.StepFailed.Render(name), style.StepFailed.Render("✗ failed")))
		}
	}

	if len(m.logs) > 0 && m.status == "deploying" {
		b.WriteString("\n")
		for _, l := range m.logs {
			b.WriteString(style.DimText.Render("  │ "+l) + "\n")
		}
	}

	b.WriteString("\n")

	elapsed := time.Since(m.startTime).Round(time.Second)

	switch m.status {
	case "connecting":
		b.WriteString(m.spinner.View() + style.DimText.Render(" Connecting to API..."))
	case "deploying":
		note := ""
		if !m.live {
			note = ", no live progress"
		}
		b.WriteString(m.spinner.View() + style.DimText.Render(fmt.Sprintf(" Pipeline running... (%s%s)", elapsed, note)))
	case "completed":
		b.WriteString(style.SuccessBox.Render(fmt.Sprintf("✓ Deployed in %s\n%s", elapsed, m.url)))
	case "failed":
		msg := "Deploy failed"
		if m.errMsg != "" {
			msg = fmt.Sprintf("Deploy failed: %s", m.errMsg)
		}
		b.WriteString(style.ErrorBox.Render("✗ " + msg))
	}

	b.WriteString("\n")
	return b.String()
}

func padRight(s string, n int) string {
	if len(s) >= n {
		return s
	}
	return s + strings.Repeat(" ", n-len(s))
}

// --- Commands ---

// connectAndDeploy subscribes to the event stream, then triggers the
// deploy over HTTP. Both feed one channel; the HTTP response is the
// final word on the outcome.
func connectAndDeploy(repo string) tea.Cmd {
	return func() tea.Msg {
		ch := make(chan tea.Msg, 64)

		conn, _, err := websocket.DefaultDialer.Dial(client.WebSocketURL(), nil)
		live := err == nil
		if live {
			go readEvents(conn, repo, ch)
		}

		go func() {
			res, err := client.Deploy(context.Background(), repo)
			if conn != nil {
				conn.Close()
			}
			ch <- deployFinished{result: res, err: err}
		}()

		return deployStarted{ch: ch, live: live}
	}
}

func readEvents(conn *websocket.Conn, repo string, ch chan<- tea.Msg) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var event api.Event
		if err := json.Unmarshal(message, &event); err != nil || event.Repo != repo {
			continue
		}
		if msg := eventMsg(event); msg != nil {
			select {
			case ch <- msg:
			default:
				// drop progress rather than stall the reader
			}
		}
	}
}

func eventMsg(event api.Event) tea.Msg {
	switch event.Type {
	case "deploy.step":
		var p struct {
			Phase string `json:"phase"`
		}
		if json.Unmarshal(event.Payload, &p) == nil && p.Phase != "" {
			return stepUpdate{phase: p.Phase}
		}
	case "deploy.log":
		var line string
		if json.Unmarshal(event.Payload, &line) == nil {
			return logLine{line: line}
		}
	}
	return nil
}

// waitForEvent reads the next event from the channel.
func waitForEvent(ch chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}
