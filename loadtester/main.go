package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/xid"
)

// seeds the contact queue with a mix of complete, partial and invalid
// contacts so a formatter run has something realistic to chew on

type seedConfig struct {
	queueURL     string
	region       string
	messages     int
	concurrency  int
	urlPrefix    string
	invalidRatio float64
	partialRatio float64
	sendTimeout  time.Duration
}

func loadSeedConfig() (seedConfig, error) {
	cfg := seedConfig{
		queueURL:     getEnv("SQS_QUEUE_URL", ""),
		region:       getEnv("AWS_REGION", "us-east-1"),
		messages:     getEnvInt("SEED_MESSAGES", 100),
		concurrency:  getEnvInt("SEED_CONCURRENCY", 5),
		urlPrefix:    getEnv("SEED_URL_PREFIX", "https://bucket.example.com/contacts/"),
		invalidRatio: getEnvFloat("SEED_INVALID_RATIO", 0.1),
		partialRatio: getEnvFloat("SEED_PARTIAL_RATIO", 0.2),
		sendTimeout:  time.Duration(getEnvInt("SEED_TIMEOUT_SECONDS", 30)) * time.Second,
	}
	if cfg.queueURL == "" {
		return cfg, fmt.Errorf("SQS_QUEUE_URL environment variable is required")
	}
	if cfg.messages < 1 || cfg.concurrency < 1 {
		return cfg, fmt.Errorf("SEED_MESSAGES and SEED_CONCURRENCY must be positive")
	}
	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

type contactKind string

const (
	kindComplete contactKind = "complete"
	kindPartial  contactKind = "partial"
	kindInvalid  contactKind = "invalid"
)

type contactBody struct {
	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
	URL   string `json:"url,omitempty"`
}

var (
	firstNames = []string{"Ada", "Grace", "Alan", "Edsger", "Barbara", "Donald", "Margaret", "Ken"}
	lastNames  = []string{"Lovelace", "Hopper", "Turing", "Dijkstra", "Liskov", "Knuth", "Hamilton", "Thompson"}
)

func pickKind(rng *rand.Rand, invalidRatio, partialRatio float64) contactKind {
	r := rng.Float64()
	switch {
	case r < invalidRatio:
		return kindInvalid
	case r < invalidRatio+partialRatio:
		return kindPartial
	default:
		return kindComplete
	}
}

func newContact(rng *rand.Rand, kind contactKind, urlPrefix string) contactBody {
	c := contactBody{
		First: firstNames[rng.Intn(len(firstNames))],
		Last:  lastNames[rng.Intn(len(lastNames))],
		URL:   urlPrefix + strings.ToLower(xid.New().String()),
	}

	switch kind {
	case kindInvalid:
		c.URL = ""
	case kindPartial:
		if rng.Intn(2) == 0 {
			c.First = ""
		} else {
			c.Last = ""
		}
	}
	return c
}

type Result struct {
	Success  bool
	Duration time.Duration
	Index    int
	Error    string
	Kind     contactKind
}

func sendContact(ctx context.Context, client *sqs.Client, cfg seedConfig, rng *rand.Rand, index int) Result {
	kind := pickKind(rng, cfg.invalidRatio, cfg.partialRatio)
	body, err := json.Marshal(newContact(rng, kind, cfg.urlPrefix))
	if err != nil {
		return Result{Index: index, Kind: kind, Error: fmt.Sprintf("JSON marshal error: %v", err)}
	}

	sendCtx, cancel := context.WithTimeout(ctx, cfg.sendTimeout)
	defer cancel()

	startTime := time.Now()
	_, err = client.SendMessage(sendCtx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(cfg.queueURL),
		MessageBody: aws.String(string(body)),
	})
	duration := time.Since(startTime)

	if err != nil {
		return Result{Duration: duration, Index: index, Kind: kind, Error: err.Error()}
	}
	return Result{Success: true, Duration: duration, Index: index, Kind: kind}
}

// UI Model
type model struct {
	cfg        seedConfig
	spinner    spinner.Model
	progress   progress.Model
	sent       int
	failed     int
	byKind     map[contactKind]int
	recentLogs []logEntry
	errors     []string
	totalLat   time.Duration
	startTime  time.Time
	isComplete bool
	width      int
}

type logEntry struct {
	timestamp time.Time
	message   string
	success   bool
}

type resultMsg Result
type completeMsg struct{}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			Background(lipgloss.Color("235")).
			Padding(0, 1).
			MarginBottom(1)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	valueStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("111"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2).
			MarginBottom(1)
)

func initialModel(cfg seedConfig) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return model{
		cfg:        cfg,
		spinner:    s,
		progress:   progress.New(progress.WithDefaultGradient()),
		byKind:     make(map[contactKind]int),
		recentLogs: make([]logEntry, 0, 10),
		startTime:  time.Now(),
	}
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.progress.Width = msg.Width - 4
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case resultMsg:
		m.sent++
		m.totalLat += msg.Duration

		entry := logEntry{timestamp: time.Now(), success: msg.Success}
		if msg.Success {
			m.byKind[msg.Kind]++
			entry.message = fmt.Sprintf("Contact %d queued as %s (%v)", msg.Index, msg.Kind, msg.Duration.Round(time.Millisecond))
		} else {
			m.failed++
			entry.message = fmt.Sprintf("Contact %d failed: %s", msg.Index, msg.Error)
			m.errors = append([]string{msg.Error}, m.errors...)
			if len(m.errors) > 5 {
				m.errors = m.errors[:5]
			}
		}

		m.recentLogs = append([]logEntry{entry}, m.recentLogs...)
		if len(m.recentLogs) > 10 {
			m.recentLogs = m.recentLogs[:10]
		}
		return m, nil

	case completeMsg:
		m.isComplete = true
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Contact Queue Seeder") + "\n")

	percent := float64(m.sent) / float64(m.cfg.messages)
	progressText := fmt.Sprintf("Progress: %d/%d contacts (%.1f%%)", m.sent, m.cfg.messages, percent*100)
	if m.isComplete {
		progressText = "✓ " + progressText
	} else {
		progressText = m.spinner.View() + " " + progressText
	}
	b.WriteString(progressText + "\n")
	b.WriteString(m.progress.ViewAs(percent) + "\n\n")

	b.WriteString(m.renderStats() + "\n")
	b.WriteString(m.renderLogs() + "\n")

	if len(m.errors) > 0 {
		var errs strings.Builder
		errs.WriteString(errorStyle.Render("⚠ Recent Errors:") + "\n\n")
		for _, e := range m.errors {
			errs.WriteString(fmt.Sprintf("  %s %s\n", errorStyle.Render("•"), e))
		}
		b.WriteString(boxStyle.Width(84).Render(errs.String()) + "\n")
	}

	if m.isComplete {
		b.WriteString(successStyle.Render("\n✓ Seeding complete! Press 'q' to quit"))
	} else {
		b.WriteString(labelStyle.Render("\nPress 'q' to quit"))
	}
	return b.String()
}

func (m model) renderStats() string {
	avg := "N/A"
	if m.sent > 0 {
		avg = (m.totalLat / time.Duration(m.sent)).Round(time.Millisecond).String()
	}

	content := fmt.Sprintf(
		"%s %s\n%s %s\n%s %s\n%s %s\n%s %s\n%s %s\n%s %s",
		labelStyle.Render("Queue URL:"), valueStyle.Render(m.cfg.queueURL),
		labelStyle.Render("Complete:"), successStyle.Render(strconv.Itoa(m.byKind[kindComplete])),
		labelStyle.Render("Partial names:"), valueStyle.Render(strconv.Itoa(m.byKind[kindPartial])),
		labelStyle.Render("Missing url:"), valueStyle.Render(strconv.Itoa(m.byKind[kindInvalid])),
		labelStyle.Render("Send failures:"), errorStyle.Render(strconv.Itoa(m.failed)),
		labelStyle.Render("Avg latency:"), valueStyle.Render(avg),
		labelStyle.Render("Elapsed:"), valueStyle.Render(time.Since(m.startTime).Round(time.Second).String()),
	)
	return boxStyle.Width(84).Render(content)
}

func (m model) renderLogs() string {
	var logs strings.Builder
	logs.WriteString(labelStyle.Render("Recent Activity:") + "\n\n")

	if len(m.recentLogs) == 0 {
		logs.WriteString(labelStyle.Render("  No activity yet..."))
	}
	for _, entry := range m.recentLogs {
		style, icon := successStyle, "✓"
		if !entry.success {
			style, icon = errorStyle, "✗"
		}
		logs.WriteString(fmt.Sprintf("  %s %s %s\n",
			labelStyle.Render(entry.timestamp.Format("15:04:05.000")),
			style.Render(icon),
			entry.message,
		))
	}
	return boxStyle.Width(84).Render(logs.String())
}

func main() {
	cfg, err := loadSeedConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	awsCFG, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.region))
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Unable to load SDK config: %v\n", err)
		os.Exit(1)
	}
	client := sqs.NewFromConfig(awsCFG)

	p := tea.NewProgram(initialModel(cfg), tea.WithAltScreen())

	go func() {
		jobs := make(chan int, cfg.messages)
		results := make(chan Result, cfg.messages)

		var wg sync.WaitGroup
		for w := 0; w < cfg.concurrency; w++ {
			wg.Add(1)
			go func(workerID int) {
				defer wg.Done()
				rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
				for index := range jobs {
					if ctx.Err() != nil {
						return
					}
					results <- sendContact(ctx, client, cfg, rng, index)
				}
			}(w)
		}

		for i := 1; i <= cfg.messages; i++ {
			jobs <- i
		}
		close(jobs)

		go func() {
			wg.Wait()
			close(results)
		}()

		for result := range results {
			p.Send(resultMsg(result))
		}
		p.Send(completeMsg{})
	}()

	go func() {
		<-ctx.Done()
		p.Quit()
	}()

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}
