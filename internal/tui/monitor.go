package tui

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mattjoyce/herald/internal/events"
)

// --- Styles ---

var (
	docStyle = lipgloss.NewStyle().Margin(1, 2)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD"))

	statusOK       = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	statusFailed   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	statusRejected = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFF00"))

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Padding(0, 1)
)

// --- Types ---

type messageRow struct {
	At     time.Time
	Sender string
	Stream string
	Topic  string
	Body   string
}

type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	messages  []messageRow
	eventLog  []events.Event
	hubEvents chan events.Event
	rejected  int

	health struct {
		Status            string
		UptimeSeconds     int64
		MessagesDelivered int
		BotsLoaded        int
	}

	msgTable table.Model
}

type eventMsg events.Event
type healthMsg struct {
	Status            string `json:"status"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
	MessagesDelivered int    `json:"messages_delivered"`
	BotsLoaded        int    `json:"bots_loaded"`
}
type errMsg error

// --- Init ---

func NewMonitor(apiURL, apiKey string) *Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "Time", Width: 8},
			{Title: "Bot", Width: 14},
			{Title: "Stream", Width: 14},
			{Title: "Topic", Width: 14},
			{Title: "Body", Width: 40},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Model{
		apiURL:    apiURL,
		apiKey:    apiKey,
		messages:  make([]messageRow, 0),
		eventLog:  make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		msgTable:  t,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.subscribeToEvents(),
		m.receiveNextEvent(),
		m.pollHealth(),
		tea.EnterAltScreen,
	)
}

// --- Update ---

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.msgTable.SetWidth(m.width - 6)

	case eventMsg:
		m.handleEvent(events.Event(msg))
		m.updateTable()
		return m, m.receiveNextEvent()

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.MessagesDelivered = msg.MessagesDelivered
		m.health.BotsLoaded = msg.BotsLoaded
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return m.fetchHealth()
		})

	case errMsg:
		// Health poll retries on its timer; SSE drop leaves the feed frozen.
	}

	m.msgTable, cmd = m.msgTable.Update(msg)
	return m, cmd
}

// handleEvent runs on the program goroutine only; no locking needed.
func (m *Model) handleEvent(e events.Event) {
	m.eventLog = append([]events.Event{e}, m.eventLog...)
	if len(m.eventLog) > 50 {
		m.eventLog = m.eventLog[:50]
	}

	switch e.Type {
	case events.TypeMessageDelivered:
		p, err := events.DecodePayload[events.MessageDelivered](e)
		if err != nil {
			return
		}
		row := messageRow{At: e.At, Sender: p.Sender, Stream: p.Stream, Topic: p.Topic, Body: p.Body}
		m.messages = append([]messageRow{row}, m.messages...)
		if len(m.messages) > 100 {
			m.messages = m.messages[:100]
		}

	case events.TypeDeliveryRejected:
		m.rejected++
	}
}

func (m *Model) updateTable() {
	rows := make([]table.Row, 0, len(m.messages))
	for _, msg := range m.messages {
		body := strings.ReplaceAll(msg.Body, "\n", " ")
		if len(body) > 40 {
			body = body[:37] + "..."
		}
		rows = append(rows, table.Row{
			msg.At.Local().Format("15:04:05"),
			msg.Sender,
			msg.Stream,
			msg.Topic,
			body,
		})
	}
	m.msgTable.SetRows(rows)
}

// --- View ---

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	header := m.renderHeader()
	feed := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Delivered Messages"),
			m.msgTable.View(),
		),
	)

	eventsView := borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			titleStyle.Render("Event Stream"),
			m.renderEvents(),
		),
	)

	help := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render(" [q] Quit • [↑/↓] Scroll Messages")

	return docStyle.Render(
		lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			feed,
			eventsView,
			help,
		),
	)
}

func (m Model) renderHeader() string {
	status := statusOK.Render("RUNNING")
	if m.health.Status != "ok" && m.health.Status != "" {
		status = statusFailed.Render("DEGRADED")
	}

	uptime := time.Duration(m.health.UptimeSeconds) * time.Second

	items := []string{
		fmt.Sprintf("Status: %s", status),
		fmt.Sprintf("Uptime: %s", uptime.String()),
		fmt.Sprintf("Delivered: %d", m.health.MessagesDelivered),
		fmt.Sprintf("Bots: %d", m.health.BotsLoaded),
		fmt.Sprintf("Rejected: %s", statusRejected.Render(strconv.Itoa(m.rejected))),
	}

	cell := lipgloss.NewStyle().Width((m.width - 4) / len(items))
	cols := make([]string, 0, len(items))
	for _, item := range items {
		cols = append(cols, cell.Render(item))
	}

	return borderStyle.Width(m.width - 4).Render(
		lipgloss.JoinHorizontal(lipgloss.Top, cols...),
	)
}

func (m Model) renderEvents() string {
	var lines []string
	for i, e := range m.eventLog {
		if i >= 10 {
			break
		}
		ts := e.At.Local().Format("15:04:05")
		lines = append(lines, fmt.Sprintf("%s | %-18s | %s", ts, e.Type, string(e.Data)))
	}
	if len(lines) == 0 {
		return "  No events yet..."
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

// --- Commands ---

// subscribeToEvents tails the gateway's SSE endpoint and feeds parsed
// events into hubEvents. Frames arrive as id/event/data line groups
// separated by a blank line.
func (m Model) subscribeToEvents() tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{}
		req, _ := http.NewRequest("GET", m.apiURL+"/api/v1/events", nil)
		req.Header.Set("Authorization", "Bearer "+m.apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return errMsg(err)
		}
		defer resp.Body.Close()

		var ev events.Event
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "id: "):
				ev.ID, _ = strconv.ParseInt(line[4:], 10, 64)
			case strings.HasPrefix(line, "event: "):
				ev.Type = line[7:]
			case strings.HasPrefix(line, "data: "):
				ev.Data = []byte(line[6:])
			case line == "":
				if ev.Type != "" {
					ev.At = time.Now()
					m.hubEvents <- ev
				}
				ev = events.Event{}
			}
		}
		return nil
	}
}

func (m Model) receiveNextEvent() tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-m.hubEvents)
	}
}

func (m Model) pollHealth() tea.Cmd {
	return func() tea.Msg {
		return m.fetchHealth()
	}
}

func (m Model) fetchHealth() tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, _ := http.NewRequest("GET", m.apiURL+"/healthz", nil)
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
