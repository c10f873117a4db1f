package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"
	"github.com/rivo/tview"

	"github.com/jfmyers9/desky/internal/apperr"
	"github.com/jfmyers9/desky/internal/daemon"
	"github.com/jfmyers9/desky/internal/music"
	"github.com/jfmyers9/desky/internal/playback"
	"github.com/jfmyers9/desky/internal/session"
	"github.com/jfmyers9/desky/pkg/openweather"
)

// Tab identifies one page of the interface
type Tab int

const (
	TabNowPlaying Tab = iota
	TabClock
	TabWeather
)

var tabNames = []string{"Now Playing", "Clock", "Weather"}

// pageName returns the tview page key for the tab
func (t Tab) pageName() string {
	return tabNames[t]
}

// Backend is the part of the daemon the interface reads and drives
type Backend interface {
	SessionStatus() session.Status
	Track() *playback.TrackInfo
	RefreshTrack(ctx context.Context) error
	Connect(ctx context.Context) error
	Disconnect()
	Background()
	Player() music.Controller
	LastError() *apperr.Error
	ClearError()
}

// WeatherSource reports current conditions
type WeatherSource interface {
	Current(ctx context.Context, loc openweather.Location) (*openweather.Current, error)
	Units() openweather.Units
}

// Config holds TUI configuration options
type Config struct {
	RefreshRate    time.Duration        // How often to refresh the display
	Use24Hour      bool                 // Clock format
	Location       openweather.Location // Where to report weather for
	WeatherRefresh time.Duration        // How often to fetch weather
}

// DefaultConfig returns the default TUI configuration
func DefaultConfig() Config {
	return Config{
		RefreshRate:    500 * time.Millisecond,
		WeatherRefresh: 10 * time.Minute,
	}
}

// weatherState is the last fetch result
type weatherState struct {
	current   *openweather.Current
	err       error
	fetchedAt time.Time
}

// App is the tabbed terminal interface
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	tabBar    *tview.TextView
	banner    *tview.TextView
	footer    *tview.TextView
	track     *tview.TextView
	progress  *tview.TextView
	session   *tview.TextView
	clockView *tview.TextView
	weather   *tview.TextView

	config  Config
	backend Backend
	source  WeatherSource

	// Mutex protects state shared between the ticker, the weather fetcher
	// and key handlers
	mu          sync.Mutex
	active      Tab
	weatherData weatherState
	actionErr   string

	// Last-rendered content for change detection
	last map[*tview.TextView]string

	// Cached progress bar width to stabilize change detection.
	// Updated only when GetInnerRect returns a positive value.
	lastBarWidth int

	cancelFunc context.CancelFunc
}

// New creates the interface. source may be nil when no weather API key
// is configured.
func New(cfg Config, backend Backend, source WeatherSource) *App {
	if cfg.RefreshRate <= 0 {
		cfg.RefreshRate = DefaultConfig().RefreshRate
	}
	if cfg.WeatherRefresh <= 0 {
		cfg.WeatherRefresh = DefaultConfig().WeatherRefresh
	}
	a := &App{
		app:     tview.NewApplication(),
		config:  cfg,
		backend: backend,
		source:  source,
		last:    make(map[*tview.TextView]string),
	}
	a.setupUI()
	return a
}

func newPanel(title string, align int) *tview.TextView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(align)
	if title != "" {
		tv.SetBorder(true).
			SetTitle(" " + title + " ").
			SetTitleAlign(tview.AlignLeft)
	}
	return tv
}

// setupUI creates the UI layout
func (a *App) setupUI() {
	a.tabBar = newPanel("", tview.AlignCenter)
	a.banner = newPanel("", tview.AlignCenter)
	a.footer = newPanel("", tview.AlignCenter).
		SetText("[gray]1/2/3:tabs  c:connect  d:disconnect  r:refresh  space:play/pause  n:next  p:prev  q:quit[-]")

	// Now playing: track | progress | session status
	a.track = newPanel("Now Playing", tview.AlignCenter)
	a.progress = newPanel("", tview.AlignCenter)
	a.progress.SetBorder(true)
	a.session = newPanel("Session", tview.AlignLeft)

	nowPlaying := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.track, 0, 3, false).
		AddItem(a.progress, 3, 1, false).
		AddItem(a.session, 5, 1, false)

	a.clockView = newPanel("Clock", tview.AlignCenter)
	a.weather = newPanel("Weather", tview.AlignCenter)

	a.pages = tview.NewPages().
		AddPage(TabNowPlaying.pageName(), nowPlaying, true, true).
		AddPage(TabClock.pageName(), a.clockView, true, false).
		AddPage(TabWeather.pageName(), a.weather, true, false)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.tabBar, 1, 1, false).
		AddItem(a.pages, 0, 1, false).
		AddItem(a.banner, 1, 1, false).
		AddItem(a.footer, 1, 1, false)

	a.tabBar.SetText(renderTabBar(TabNowPlaying))
	a.app.SetInputCapture(a.handleKeyEvent)
	a.app.SetRoot(flex, true)
}

// handleKeyEvent processes keyboard input
func (a *App) handleKeyEvent(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyCtrlZ:
		a.suspend()
		return nil
	case tcell.KeyCtrlC:
		a.Stop()
		return nil
	case tcell.KeyTab:
		a.mu.Lock()
		next := (a.active + 1) % Tab(len(tabNames))
		a.mu.Unlock()
		a.showTab(next)
		return nil
	}

	switch event.Rune() {
	case 'q', 'Q':
		a.Stop()
		return nil
	case '1':
		a.showTab(TabNowPlaying)
		return nil
	case '2':
		a.showTab(TabClock)
		return nil
	case '3':
		a.showTab(TabWeather)
		return nil
	case 'c', 'C':
		go a.do(func(ctx context.Context) error { return a.backend.Connect(ctx) })
		return nil
	case 'd', 'D':
		a.backend.Disconnect()
		return nil
	case 'r', 'R':
		go a.do(a.backend.RefreshTrack)
		return nil
	case 'x', 'X':
		a.backend.ClearError()
		a.mu.Lock()
		a.actionErr = ""
		a.mu.Unlock()
		return nil
	case ' ':
		go a.do(a.backend.Player().PlayPause)
		return nil
	case 'n', 'N':
		go a.do(a.backend.Player().NextTrack)
		return nil
	case 'p', 'P':
		go a.do(a.backend.Player().PreviousTrack)
		return nil
	}
	return event
}

// do runs a backend action off the event loop
func (a *App) do(fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := fn(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.actionErr = ""
	if err != nil {
		a.actionErr = err.Error()
	}
}

// suspend moves the session to the background and stops the process.
// The daemon's SIGCONT handler brings it back to the foreground.
func (a *App) suspend() {
	a.app.Suspend(func() {
		a.backend.Background()
		_ = daemon.SuspendProcess()
	})
}

func (a *App) showTab(t Tab) {
	a.mu.Lock()
	a.active = t
	a.mu.Unlock()

	a.pages.SwitchToPage(t.pageName())
	a.tabBar.SetText(renderTabBar(t))
	if t == TabWeather {
		go a.fetchWeather(context.Background(), false)
	}
}

// Run starts the interface and blocks until it exits
func (a *App) Run(ctx context.Context) error {
	ctx, a.cancelFunc = context.WithCancel(ctx)

	go a.handleUpdates(ctx)
	go a.pollWeather(ctx)

	if err := a.app.Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}
	return nil
}

// handleUpdates is the single source of redraws
func (a *App) handleUpdates(ctx context.Context) {
	ticker := time.NewTicker(a.config.RefreshRate)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.app.Stop()
			return
		case <-ticker.C:
			a.refresh()
		}
	}
}

// pollWeather fetches weather on start and every WeatherRefresh
func (a *App) pollWeather(ctx context.Context) {
	if a.source == nil {
		return
	}
	a.fetchWeather(ctx, true)

	ticker := time.NewTicker(a.config.WeatherRefresh)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.fetchWeather(ctx, true)
		}
	}
}

// fetchWeather updates the weather state. Unless forced, a fetch
// younger than a minute is reused.
func (a *App) fetchWeather(ctx context.Context, force bool) {
	if a.source == nil || a.config.Location.IsZero() {
		return
	}

	a.mu.Lock()
	fresh := time.Since(a.weatherData.fetchedAt) < time.Minute
	a.mu.Unlock()
	if fresh && !force {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	cur, err := a.source.Current(ctx, a.config.Location)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.weatherData.err = err
		a.weatherData.fetchedAt = time.Now()
		return
	}
	a.weatherData = weatherState{current: cur, fetchedAt: time.Now()}
}

// refresh updates all UI components
func (a *App) refresh() {
	status := a.backend.SessionStatus()
	track := a.backend.Track()
	lastErr := a.backend.LastError()
	now := time.Now()

	a.mu.Lock()
	wx := a.weatherData
	actionErr := a.actionErr
	a.mu.Unlock()

	var units openweather.Units
	if a.source != nil {
		units = a.source.Units()
	}

	a.app.QueueUpdateDraw(func() {
		a.setText(a.track, renderTrack(track))
		a.setText(a.progress, a.renderProgress(track))
		a.setText(a.session, renderSession(status))
		a.setText(a.clockView, renderClock(now, a.config.Use24Hour))
		a.setText(a.weather, renderWeather(wx, units, a.source != nil && !a.config.Location.IsZero()))
		a.setText(a.banner, renderBanner(lastErr, actionErr))
	})
}

// setText updates a view only when its content changed
func (a *App) setText(tv *tview.TextView, text string) {
	if a.last[tv] == text {
		return
	}
	a.last[tv] = text
	tv.SetText(text)
}

// renderProgress builds the progress line sized to the panel
func (a *App) renderProgress(track *playback.TrackInfo) string {
	if track == nil {
		return ""
	}

	_, _, width, _ := a.progress.GetInnerRect()
	barWidth := width - 14 // Account for time display
	// Only update cached width when GetInnerRect returns a positive value,
	// avoiding flicker from transient zero-width during layout.
	if barWidth > 0 {
		a.lastBarWidth = barWidth
	}
	if a.lastBarWidth < 10 {
		a.lastBarWidth = 10
	}

	return fmt.Sprintf("%s %s %s",
		formatDuration(track.Position),
		buildProgressBar(track.Position, track.Duration, a.lastBarWidth),
		formatDuration(track.Duration))
}

// Stop stops the TUI application
func (a *App) Stop() {
	if a.cancelFunc != nil {
		a.cancelFunc()
	}
	a.app.Stop()
}

// renderTabBar highlights the active tab
func renderTabBar(active Tab) string {
	parts := make([]string, len(tabNames))
	for i, name := range tabNames {
		if Tab(i) == active {
			parts[i] = fmt.Sprintf("[black:white] %d %s [-:-]", i+1, name)
		} else {
			parts[i] = fmt.Sprintf("[gray] %d %s [-]", i+1, name)
		}
	}
	return strings.Join(parts, " ")
}

// renderTrack renders the now playing panel
func renderTrack(track *playback.TrackInfo) string {
	if track == nil {
		return "\n\n[gray]No track playing[-]"
	}

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(track.Title)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(track.Artist)))
	if track.Album != "" {
		sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(track.Album)))
	}

	stateIcon := "[green]▶[-]" // Play triangle
	if !track.IsPlaying {
		stateIcon = "[yellow]⏸[-]" // Pause icon
	}
	sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon))

	if track.ArtworkURL != nil {
		sb.WriteString(fmt.Sprintf("\n[gray]%s[-]", tview.Escape(track.ArtworkURL.String())))
	}
	return sb.String()
}

// renderSession renders the connector status
func renderSession(status session.Status) string {
	color := "gray"
	switch status.State {
	case session.Connected:
		color = "green"
	case session.Connecting, session.Retrying:
		color = "yellow"
	case session.Error:
		color = "red"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Spotify: [%s]%s[-]", color, status.State))
	if status.State == session.Retrying || status.State == session.Connecting {
		sb.WriteString(fmt.Sprintf(" (attempt %d)", status.Attempt))
	}
	if status.Message != "" {
		sb.WriteString(fmt.Sprintf("\n[gray]%s[-]", tview.Escape(status.Message)))
	}
	if !status.Since.IsZero() {
		sb.WriteString(fmt.Sprintf("\nSince: %s", status.Since.Local().Format("15:04:05")))
	}
	return sb.String()
}

// renderClock renders the time and date
func renderClock(now time.Time, use24Hour bool) string {
	layout := "3:04:05 PM"
	if use24Hour {
		layout = "15:04:05"
	}
	return fmt.Sprintf("\n\n[white::b]%s[-:-:-]\n\n[gray]%s[-]",
		now.Format(layout), now.Format("Monday, 2 January 2006"))
}

// renderWeather renders the last weather fetch
func renderWeather(wx weatherState, units openweather.Units, configured bool) string {
	if !configured {
		return "\n\n[gray]Set weather.api_key and weather.city (or lat/lon) to show the weather[-]"
	}
	if wx.current == nil {
		if wx.err != nil {
			return fmt.Sprintf("\n\n[red]%s[-]", tview.Escape(wx.err.Error()))
		}
		return "\n\n[gray]Loading...[-]"
	}

	cur := wx.current
	symbol := temperatureSymbol(units)

	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("[white::b]%.0f%s[-:-:-]  %s\n", cur.Temperature, symbol, tview.Escape(cur.Description)))
	sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n\n", tview.Escape(locationName(cur))))
	sb.WriteString(fmt.Sprintf("Feels like %.0f%s  Low %.0f%s  High %.0f%s\n",
		cur.FeelsLike, symbol, cur.TempMin, symbol, cur.TempMax, symbol))
	sb.WriteString(fmt.Sprintf("Humidity %d%%  Wind %.1f %s", cur.Humidity, cur.WindSpeed, windUnit(units)))
	if wx.err != nil {
		sb.WriteString(fmt.Sprintf("\n\n[gray]Last update failed: %s[-]", tview.Escape(wx.err.Error())))
	}
	return sb.String()
}

// renderBanner shows the last classified failure, or the last failed
// key action
func renderBanner(err *apperr.Error, actionErr string) string {
	if err == nil {
		if actionErr == "" {
			return ""
		}
		return fmt.Sprintf("[red]%s[-] [gray](x to dismiss)[-]", tview.Escape(truncate(actionErr, 80)))
	}
	color := "red"
	switch err.Kind {
	case apperr.Transient:
		color = "yellow"
	case apperr.UserCancelable:
		color = "gray"
	}
	return fmt.Sprintf("[%s]%s[-] [gray](x to dismiss)[-]", color, tview.Escape(truncate(err.Message, 80)))
}

func locationName(cur *openweather.Current) string {
	if cur.Country == "" {
		return cur.Name
	}
	return cur.Name + ", " + cur.Country
}

func temperatureSymbol(units openweather.Units) string {
	switch units {
	case openweather.Imperial:
		return "°F"
	case openweather.Standard:
		return "K"
	default:
		return "°C"
	}
}

func windUnit(units openweather.Units) string {
	if units == openweather.Imperial {
		return "mph"
	}
	return "m/s"
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration time.Duration, width int) string {
	if duration == 0 || width <= 0 {
		return strings.Repeat("-", width)
	}

	progress := float64(position) / float64(duration)
	if progress > 1 {
		progress = 1
	}
	if progress < 0 {
		progress = 0
	}

	filled := int(progress * float64(width))
	empty := width - filled

	bar := "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"

	return bar
}

// formatDuration formats a duration as MM:SS or HH:MM:SS for longer durations
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}

// truncate shortens s to width display columns
func truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "...")
}
