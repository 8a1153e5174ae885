// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package console renders torrents and results for a terminal and asks the
// operator to confirm selections.
//
// Informational lines go to the output stream prefixed with "-- ", warnings
// and errors to the error stream prefixed with "-w " and "-e ".
package console

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/autobrr/trctl/internal/domain"
	"github.com/autobrr/trctl/internal/services/admission"
	"github.com/autobrr/trctl/internal/transmission"
)

// ErrUnexpectedEOF is returned when input ends before a full answer line.
var ErrUnexpectedEOF = errors.New("unexpected end of file")

type Options struct {
	// BaseDir is stripped from download dirs in tables.
	BaseDir string
	// Interactive enables prompts. Without it every selection is accepted.
	Interactive bool
	// AskExisting asks before re-adding a torrent fetched before.
	AskExisting bool
}

type Console struct {
	mu   sync.Mutex
	out  io.Writer
	err  io.Writer
	in   *bufio.Reader
	opts Options
}

func New(in io.Reader, out, errOut io.Writer, opts Options) *Console {
	return &Console{
		out:  out,
		err:  errOut,
		in:   bufio.NewReader(in),
		opts: opts,
	}
}

func (c *Console) Infof(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "-- "+format+"\n", args...)
}

func (c *Console) Warnf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "-w "+format+"\n", args...)
}

func (c *Console) Errorf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.err, "-e "+format+"\n", args...)
}

// Println writes a bare line to the output stream.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// PrintTorrents writes the table: header, one row per torrent and the Sum footer.
func (c *Console) PrintTorrents(torrents []transmission.Torrent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fmt.Fprintln(c.out, Header)
	for i := range torrents {
		fmt.Fprintln(c.out, Row(&torrents[i], c.opts.BaseDir))
	}
	fmt.Fprintln(c.out, Footer(torrents))
}

func (c *Console) PrintJSON(torrents []transmission.Torrent) error {
	if torrents == nil {
		torrents = []transmission.Torrent{}
	}
	data, err := json.MarshalIndent(torrents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = fmt.Fprintln(c.out, string(data))
	return err
}

func (c *Console) PrintYAML(torrents []transmission.Torrent) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	enc := yaml.NewEncoder(c.out)
	enc.SetIndent(2)
	if err := enc.Encode(torrents); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

// readReply reads one answer line. A reply without its newline means the input
// was cut short.
func (c *Console) readReply() (string, error) {
	reply, err := c.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", ErrUnexpectedEOF
		}
		return "", fmt.Errorf("failed to read answer: %w", err)
	}

	reply = strings.TrimSuffix(reply, "\n")
	reply = strings.TrimSuffix(reply, "\r")
	return reply, nil
}

func (c *Console) prompt(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, s)
}

// YesNo asks question until the answer is y, n, N or empty.
func (c *Console) YesNo(question string) (bool, error) {
	for {
		c.prompt(question + " [y/N]: ")

		ans, err := c.readReply()
		if err != nil {
			return false, err
		}

		switch ans {
		case "y":
			return true, nil
		case "", "n", "N":
			return false, nil
		}
		c.Warnf("Invalid selection '%s'", ans)
	}
}

// Select shows torrents and lets the operator pick all of them, one by id, or
// none. Choosing none is a NothingToDoError.
func (c *Console) Select(torrents []transmission.Torrent) ([]transmission.Torrent, error) {
	if len(torrents) == 0 {
		return nil, domain.ErrNoMatches
	}

	c.PrintTorrents(torrents)

	if !c.opts.Interactive {
		return torrents, nil
	}

	if len(torrents) == 1 {
		ok, err := c.YesNo("Select")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, domain.NothingToDo("No selection")
		}
		return torrents, nil
	}

	for {
		c.prompt("Select [a/{n}/N]: ")

		ans, err := c.readReply()
		if err != nil {
			return nil, err
		}

		switch ans {
		case "", "n", "N":
			return nil, domain.NothingToDo("No selection")
		case "a":
			return torrents, nil
		}

		id, err := strconv.ParseInt(ans, 10, 64)
		if err != nil {
			c.Warnf("Invalid number '%s'", ans)
			continue
		}

		for i := range torrents {
			if torrents[i].ID != nil && *torrents[i].ID == id {
				return torrents[i : i+1], nil
			}
		}
		c.Warnf("Invalid id")
	}
}

// ConfirmExisting asks whether a torrent fetched before should be added again.
func (c *Console) ConfirmExisting(name string, at time.Time) (bool, error) {
	if !c.opts.AskExisting || !c.opts.Interactive {
		return true, nil
	}

	return c.YesNo(fmt.Sprintf("'%s' exists (modified %s, %s). Download again",
		name, at.Format("2006-01-02"), humanize.Time(at)))
}

// AddResult reports the outcome of one admission.
func (c *Console) AddResult(res *admission.Result) {
	if res.Response.Duplicate {
		state := "incomplete"
		if res.ExistedAt != nil {
			state = "completed"
		}
		c.Warnf("Already loaded (%s) (id: %d): %s", state, res.Response.ID, res.Response.Name)
		return
	}

	var status string
	if res.ExistedAt != nil {
		status += "have "
	}
	if res.WouldBeFull {
		status += "full "
	}
	if res.OverQuota {
		status += "quota "
	}

	c.Infof("Torrent added (%sT%s F%s): %s",
		status,
		ByteSize(res.ProjectedTotal, 0, 1),
		ByteSize(res.ProjectedLeft, 0, 1),
		res.Response.Name,
	)
}

// ActionResult lists the torrents an action was sent to.
func (c *Console) ActionResult(heading string, torrents []transmission.Torrent) {
	c.Infof("%s", heading)
	for i := range torrents {
		var id int64
		if torrents[i].ID != nil {
			id = *torrents[i].ID
		}
		name := "no name"
		if torrents[i].Name != nil {
			name = *torrents[i].Name
		}
		c.Infof("%d: %s", id, name)
	}
}

// PrintResult reports the final error of a command. Operator no-ops, empty
// queries and batch summaries are warnings.
func (c *Console) PrintResult(err error) {
	if err == nil {
		return
	}

	var multi *domain.MultipleError
	switch {
	case domain.IsNothingToDo(err), errors.Is(err, domain.ErrNoMatches), errors.As(err, &multi):
		c.Warnf("%v", err)
	default:
		c.Errorf("%v", err)
	}
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil || domain.IsNothingToDo(err) {
		return 0
	}
	return 1
}
