package output

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tanq16/melo/internal/utils"
)

// FileOutput tracks the display state of a single download.
type FileOutput struct {
	ID          int
	Name        string
	Status      string // "pending", "downloading", "success", "error"
	Message     string
	Downloaded  int64
	Total       int64 // 0 when the size is unknown
	Complete    bool
	StartTime   time.Time
	LastUpdated time.Time
	Err         error
}

type ErrorReport struct {
	Name string
	Err  error
	Time time.Time
}

// Manager aggregates download progress and renders it in place on the
// terminal. All methods are safe for concurrent use.
type Manager struct {
	files       map[int]*FileOutput
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	fileCount   int
	displayWg   sync.WaitGroup
	totalBytes  int64
	totalDone   int64
	startTime   time.Time
}

func NewManager(totalBytes int64) *Manager {
	return &Manager{
		files:       make(map[int]*FileOutput),
		doneCh:      make(chan struct{}),
		displayTick: 300 * time.Millisecond,
		totalBytes:  totalBytes,
		startTime:   time.Now(),
	}
}

// Register adds a file to the display and returns its id.
func (m *Manager) Register(name string, total int64) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.fileCount++
	m.files[m.fileCount] = &FileOutput{
		ID:          m.fileCount,
		Name:        name,
		Status:      "pending",
		Total:       total,
		StartTime:   time.Now(),
		LastUpdated: time.Now(),
	}
	return m.fileCount
}

func (m *Manager) SetMessage(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if f, ok := m.files[id]; ok {
		f.Message = message
		f.LastUpdated = time.Now()
	}
}

func (m *Manager) SetStatus(id int, status string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if f, ok := m.files[id]; ok {
		if f.Status == "pending" && status == "downloading" {
			f.StartTime = time.Now()
		}
		f.Status = status
		f.LastUpdated = time.Now()
	}
}

// Progress records n more bytes written for the file.
func (m *Manager) Progress(id int, n int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	f, ok := m.files[id]
	if !ok {
		return
	}
	if f.Status == "pending" {
		f.Status = "downloading"
		f.StartTime = time.Now()
	}
	f.Downloaded += n
	f.LastUpdated = time.Now()
	m.totalDone += n
}

func (m *Manager) Complete(id int, message string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if f, ok := m.files[id]; ok {
		f.Status = "success"
		f.Complete = true
		if message != "" {
			f.Message = message
		}
		f.LastUpdated = time.Now()
	}
}

func (m *Manager) ReportError(id int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if f, ok := m.files[id]; ok {
		f.Status = "error"
		f.Complete = true
		f.Err = err
		f.Message = err.Error()
		f.LastUpdated = time.Now()
		m.errors = append(m.errors, ErrorReport{Name: f.Name, Err: err, Time: time.Now()})
	}
}

// Totals reports bytes downloaded so far and the overall expected size.
func (m *Manager) Totals() (int64, int64) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.totalDone, m.totalBytes
}

func (m *Manager) sortFiles() (active, pending, completed []*FileOutput) {
	for _, f := range m.files {
		switch {
		case f.Complete:
			completed = append(completed, f)
		case f.Status == "pending":
			pending = append(pending, f)
		default:
			active = append(active, f)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	sort.Slice(completed, func(i, j int) bool { return completed[i].ID < completed[j].ID })
	return active, pending, completed
}

func getStatusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) updateDisplay() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if m.numLines > 0 {
		fmt.Printf("\033[%dA\033[J", m.numLines)
	}
	lineCount := 0
	active, pending, completed := m.sortFiles()
	elapsed := time.Since(m.startTime).Seconds()
	if m.totalBytes > 0 && len(m.files) > 1 {
		fmt.Printf("  %s %s%s %s\n",
			headerStyle.Render("Total"),
			PrintProgressBar(m.totalDone, m.totalBytes, 30),
			debugStyle.Render(fmt.Sprintf("%s of %s", utils.FormatBytes(uint64(m.totalDone)), utils.FormatBytes(uint64(m.totalBytes)))),
			debugStyle.Render(fmt.Sprintf("%s ETA %s", utils.FormatSpeed(m.totalDone, elapsed), formatETA(m.totalDone, m.totalBytes, elapsed))))
		lineCount++
	}

	// Hide the oldest completed entries when the terminal is too short.
	availableLines := getTerminalHeight() - 4
	linesNeeded := lineCount + len(active)*2 + len(pending) + len(completed)
	hiddenCompleted := 0
	if linesNeeded > availableLines {
		hiddenCompleted = min(linesNeeded-availableLines+1, len(completed))
		completed = completed[hiddenCompleted:]
	}

	for _, f := range active {
		fmt.Printf("  %s %s %s\n", getStatusIndicator(f.Status), f.Name, pendingStyle.Render(f.Message))
		lineCount++
		fileElapsed := time.Since(f.StartTime).Seconds()
		if f.Total > 0 {
			fmt.Printf("      %s%s %s\n",
				PrintProgressBar(f.Downloaded, f.Total, 30),
				debugStyle.Render(fmt.Sprintf("%s of %s", utils.FormatBytes(uint64(f.Downloaded)), utils.FormatBytes(uint64(f.Total)))),
				debugStyle.Render(fmt.Sprintf("%s ETA %s", utils.FormatSpeed(f.Downloaded, fileElapsed), formatETA(f.Downloaded, f.Total, fileElapsed))))
		} else {
			fmt.Printf("      %s\n", debugStyle.Render(fmt.Sprintf("%s %s", utils.FormatBytes(uint64(f.Downloaded)), utils.FormatSpeed(f.Downloaded, fileElapsed))))
		}
		lineCount++
	}
	for _, f := range pending {
		fmt.Printf("  %s %s %s\n", getStatusIndicator(f.Status), f.Name, debugStyle.Render("waiting"))
		lineCount++
	}
	if hiddenCompleted > 0 {
		fmt.Printf("  %s\n", streamStyle.Render(fmt.Sprintf("… %d earlier files not shown", hiddenCompleted)))
		lineCount++
	}
	for _, f := range completed {
		style := success2Style
		if f.Status == "error" {
			style = errorStyle
		}
		fmt.Printf("  %s %s %s\n", getStatusIndicator(f.Status), f.Name, style.Render(f.Message))
		lineCount++
	}
	m.numLines = lineCount
}

// StartDisplay begins the periodic in-place redraw. Call StopDisplay to
// finish; the final state is drawn once more before it returns.
func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-m.doneCh:
				m.updateDisplay()
				return
			case <-ticker.C:
				m.updateDisplay()
			}
		}
	}()
}

func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
}

// ShowSummary prints the closing status line and any collected errors.
func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	success := 0
	for _, f := range m.files {
		if f.Status == "success" {
			success++
		}
	}
	elapsed := time.Since(m.startTime).Seconds()
	fmt.Println()
	if success == len(m.files) {
		PrintSuccess(fmt.Sprintf("%s Completed %d of %d files in %s (%s)",
			StyleSymbols["pass"], success, len(m.files),
			time.Since(m.startTime).Round(time.Second),
			utils.FormatSpeed(m.totalDone, elapsed)))
	} else {
		PrintError(fmt.Sprintf("%s Completed %d of %d files",
			StyleSymbols["fail"], success, len(m.files)))
	}
	m.displayErrors()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Println()
	PrintError("Errors:")
	for _, report := range m.errors {
		fmt.Printf("  %s %s\n", errorStyle.Render(StyleSymbols["fail"]), errorStyle.Render(report.Name))
		for _, line := range wrapText(report.Err.Error(), 6) {
			fmt.Printf("      %s\n", streamStyle.Render(line))
		}
	}
}
