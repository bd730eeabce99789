// Package cui implements an interactive terminal inspector for the
// decoder: type the path to a JSON-encoded frame matrix and see the ranked
// hypotheses it decodes to, with decode time and trie statistics. Each
// decode is recorded as a history entry in storage; the inspector does not
// display that history.
package cui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jroimartin/gocui"

	"ctcbeam/internal/decoder"
	"ctcbeam/internal/domain/models"
	"ctcbeam/internal/lib/logger/sl"
	"ctcbeam/internal/storage/leveldb"
	"ctcbeam/internal/utils"
)

type CUI struct {
	ctx        context.Context
	cui        *gocui.Gui
	batch      *decoder.BatchDriver
	vocab      []string
	storage    *leveldb.Storage
	log        *slog.Logger
	maxResults int
	seq        int64
	lastStats  utils.PathTrieStats
}

func New(ctx context.Context, log *slog.Logger, batch *decoder.BatchDriver, vocab []string, storage *leveldb.Storage, maxResults int) *CUI {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		log.Error("Failed to create GUI:", "error", sl.Err(err))
		os.Exit(1)
	}
	return &CUI{
		ctx:        ctx,
		cui:        g,
		batch:      batch,
		vocab:      vocab,
		storage:    storage,
		log:        log,
		maxResults: maxResults,
	}
}

func (c *CUI) Close() {
	c.cui.Close()
}

func (c *CUI) Start() error {
	c.cui.Cursor = true
	c.cui.SetManagerFunc(c.layout)
	defer c.cui.Close()

	if err := c.cui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone, quit); err != nil {
		c.log.Error("Failed to set keybinding:", "error", sl.Err(err))
	}
	if err := c.cui.SetKeybinding("input", gocui.KeyEnter, gocui.ModNone, func(g *gocui.Gui, v *gocui.View) error {
		framesPath := strings.TrimSpace(v.Buffer())
		return c.decode(g, v, c.ctx, framesPath)
	}); err != nil {
		c.log.Error("Failed to set keybinding:", "error", sl.Err(err))
	}

	if err := c.cui.SetKeybinding("output", gocui.KeyArrowDown, gocui.ModNone, scrollDown); err != nil {
		c.log.Error("Failed to set keybinding:", "error", sl.Err(err))
	}
	if err := c.cui.SetKeybinding("output", gocui.KeyArrowUp, gocui.ModNone, scrollUp); err != nil {
		c.log.Error("Failed to set keybinding:", "error", sl.Err(err))
	}
	if err := c.cui.SetKeybinding("maxResults", gocui.KeyEnter, gocui.ModNone, func(g *gocui.Gui, v *gocui.View) error {
		return c.setMaxResults(g, v)
	}); err != nil {
		c.log.Error("Failed to set keybinding:", "error", sl.Err(err))
	}

	if err := c.cui.SetKeybinding("", gocui.KeyTab, gocui.ModNone, func(g *gocui.Gui, v *gocui.View) error {
		currentView := g.CurrentView().Name()
		if currentView == "input" {
			_, _ = g.SetCurrentView("maxResults")
		} else if currentView == "maxResults" {
			_, _ = g.SetCurrentView("output")
		} else {
			_, _ = g.SetCurrentView("input")
		}
		return nil
	}); err != nil {
		c.log.Error("Failed to set keybinding:", "error", sl.Err(err))
	}

	if err := c.cui.MainLoop(); err != nil && err != gocui.ErrQuit {
		c.log.Error("Failed to run GUI:", "error", sl.Err(err))
	}

	return nil
}

func (c *CUI) setMaxResults(g *gocui.Gui, v *gocui.View) error {
	maxResultsStr := strings.TrimSpace(v.Buffer())
	if maxResultsInt, err := strconv.Atoi(maxResultsStr); err == nil {
		c.maxResults = maxResultsInt
	}
	return nil
}

func scrollDown(g *gocui.Gui, v *gocui.View) error {
	_, oy := v.Origin()
	_, sy := v.Size()

	lines := len(v.BufferLines())

	if oy+sy < lines {
		v.SetOrigin(0, oy+1)
	}
	return nil
}

func scrollUp(g *gocui.Gui, v *gocui.View) error {
	_, oy := v.Origin()
	if oy > 0 {
		v.SetOrigin(0, oy-1)
	}
	return nil
}

func (c *CUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	if maxX < 10 || maxY < 6 {
		return fmt.Errorf("terminal window is too small")
	}

	if v, err := g.SetView("time", 0, 0, maxX/4, maxY-2); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Timing"
		v.Wrap = true
		v.Frame = true
	}

	if v, err := g.SetView("input", maxX/4+1, 2, maxX-2, 4); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Editable = true
		v.Title = "Frames file (JSON [][]float64)"
		v.Wrap = true
		_, _ = g.SetCurrentView("input")
	}

	if v, err := g.SetView("maxResults", maxX/4+1, 5, maxX/2, 7); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Editable = true
		v.Title = "Max Hypotheses"
		v.Wrap = true

		fmt.Fprintf(v, "%d", c.maxResults)
	}

	if v, err := g.SetView("output", maxX/4+1, 8, maxX-2, maxY-2); err != nil {
		if !errors.Is(err, gocui.ErrUnknownView) {
			return err
		}
		v.Title = "Hypotheses"
		v.Wrap = true
		v.Clear()
	}

	return nil
}

func (c *CUI) decode(g *gocui.Gui, v *gocui.View, ctx context.Context, framesPath string) error {
	framesPath = strings.TrimSpace(v.Buffer())

	hyps, elapsed, err := c.runDecode(ctx, framesPath)

	timeView, terr := g.View("time")
	if terr != nil {
		return terr
	}
	timeView.Clear()
	fmt.Fprintln(timeView, "\033[33mDecode Time:\033[0m")
	fmt.Fprintf(timeView, "\033[32m%s\033[0m\n", utils.FormatDuration(elapsed))

	outputView, oerr := g.View("output")
	if oerr != nil {
		return oerr
	}
	outputView.Clear()

	if err != nil {
		fmt.Fprintf(outputView, "\033[31merror: %s\033[0m\n", err)
		return nil
	}

	fmt.Fprintf(outputView, "\033[33mHypotheses: %d\033[0m\n", len(hyps))
	for i, h := range hyps {
		if i >= c.maxResults {
			break
		}
		fmt.Fprintf(outputView, "\033[32m#%d score=%.4f\033[0m %s\n", i+1, h.Score, c.spell(h.Tokens))
	}

	fmt.Fprintln(timeView, "\033[33mTrie:\033[0m")
	fmt.Fprintf(timeView, "nodes=%d live=%d leaves=%d maxdepth=%d avgdepth=%.1f\n",
		c.lastStats.Nodes, c.lastStats.LiveNodes, c.lastStats.Leaves, c.lastStats.MaxDepth, c.lastStats.AvgDepth)

	_, _ = g.SetCurrentView("input")
	return nil
}

func (c *CUI) runDecode(ctx context.Context, framesPath string) ([]models.Hypothesis, time.Duration, error) {
	data, err := os.ReadFile(framesPath)
	if err != nil {
		return nil, 0, fmt.Errorf("read frames file: %w", err)
	}
	var frames [][]float64
	if err := json.Unmarshal(data, &frames); err != nil {
		return nil, 0, fmt.Errorf("parse frames json: %w", err)
	}

	start := time.Now()
	results := c.batch.DecodeBatch(ctx, []decoder.Utterance{{Frames: frames, ValidLength: len(frames)}})
	elapsed := time.Since(start)
	if len(results) == 0 {
		return nil, elapsed, fmt.Errorf("no decode result returned")
	}
	if results[0].Err != nil {
		return nil, elapsed, results[0].Err
	}
	c.lastStats = results[0].TrieStats

	c.seq++
	entry := &models.HistoryEntry{
		ID:        leveldb.NextHistoryID(c.seq, time.Now()),
		NumBeams:  len(results[0].Hypotheses),
		ElapsedMs: float64(elapsed.Microseconds()) / 1000.0,
		DecodedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if len(results[0].Hypotheses) > 0 {
		entry.TopScore = results[0].Hypotheses[0].Score
		entry.NumTokens = len(results[0].Hypotheses[0].Tokens)
	}
	if err := c.storage.RecordHistory(ctx, entry); err != nil {
		c.log.Warn("failed to record decode history", sl.Err(err))
	}

	return results[0].Hypotheses, elapsed, nil
}

// spell renders a token id sequence as the text it represents, for
// display only; it does not collapse separators the way SplitLabels does.
func (c *CUI) spell(tokens []int) string {
	var sb strings.Builder
	for _, id := range tokens {
		if id >= 0 && id < len(c.vocab) {
			sb.WriteString(c.vocab[id])
		}
	}
	return sb.String()
}

func quit(g *gocui.Gui, v *gocui.View) error {
	return gocui.ErrQuit
}
