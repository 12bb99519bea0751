// Package cli implements the interactive selection flow: camera, quality,
// recording day and worker count, driven by what the device reports.
package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/reolink-tools/daygrab/internal/nvr"
)

// ErrAborted is returned when the user declines the confirmation prompt.
var ErrAborted = errors.New("aborted by user")

// Selection is the outcome of a completed interactive session.
type Selection struct {
	Channel int
	Date    time.Time
	Quality nvr.Quality
	Workers int
}

// Prompter walks the user through the download selection.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Select asks for camera, quality, recording day and worker count. The day
// list comes from the device, so only days with actual footage are offered.
func (p *Prompter) Select(ctx context.Context, sess nvr.Session, lookback, maxWorkers int) (*Selection, error) {
	channel, err := p.selectChannel(ctx, sess)
	if err != nil {
		return nil, err
	}

	quality, err := p.selectQuality()
	if err != nil {
		return nil, err
	}

	date, err := p.selectDate(ctx, sess, channel, quality, lookback)
	if err != nil {
		return nil, err
	}

	workers, err := p.selectWorkers(maxWorkers)
	if err != nil {
		return nil, err
	}

	fmt.Fprintf(p.out, "\nDownload channel %d, %s quality, %s with %d workers.\n",
		channel, quality, date.Format("2006-01-02"), workers)

	ok, err := p.confirm("Proceed? [Y/n]: ")
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrAborted
	}

	return &Selection{Channel: channel, Date: date, Quality: quality, Workers: workers}, nil
}

func (p *Prompter) selectChannel(ctx context.Context, sess nvr.Session) (int, error) {
	channels, err := sess.Channels(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list channels: %w", err)
	}

	if len(channels) == 0 {
		return 0, errors.New("device reports no channels")
	}

	if len(channels) == 1 {
		fmt.Fprintf(p.out, "Using the only channel: %d (%s)\n", channels[0].Index, channels[0].Name)

		return channels[0].Index, nil
	}

	fmt.Fprintln(p.out, "Available channels:")

	for _, ch := range channels {
		state := "online"
		if !ch.Online {
			state = "offline"
		}

		fmt.Fprintf(p.out, "  [%d] %s (%s)\n", ch.Index, ch.Name, state)
	}

	raw, err := p.prompt("Channel: ")
	if err != nil {
		return 0, err
	}

	index, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid channel %q", raw)
	}

	for _, ch := range channels {
		if ch.Index == index {
			return index, nil
		}
	}

	return 0, fmt.Errorf("channel %d does not exist", index)
}

func (p *Prompter) selectQuality() (nvr.Quality, error) {
	fmt.Fprintln(p.out, "Quality:")
	fmt.Fprintln(p.out, "  [1] high (main stream)")
	fmt.Fprintln(p.out, "  [2] low (sub stream)")

	raw, err := p.prompt("Quality [1]: ")
	if err != nil {
		return "", err
	}

	switch raw {
	case "", "1":
		return nvr.QualityHigh, nil
	case "2":
		return nvr.QualityLow, nil
	}

	if q, ok := nvr.ParseQuality(raw); ok {
		return q, nil
	}

	return "", fmt.Errorf("invalid quality %q", raw)
}

func (p *Prompter) selectDate(ctx context.Context, sess nvr.Session, channel int, quality nvr.Quality, lookback int) (time.Time, error) {
	days, err := sess.RecordingDays(ctx, channel, quality, lookback)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to list recording days: %w", err)
	}

	if len(days) == 0 {
		return time.Time{}, fmt.Errorf("no recordings on channel %d in the last %d days", channel, lookback)
	}

	fmt.Fprintln(p.out, "Days with recordings:")

	for i, day := range days {
		fmt.Fprintf(p.out, "  [%d] %s\n", i+1, day.Format("2006-01-02"))
	}

	raw, err := p.prompt("Day [1]: ")
	if err != nil {
		return time.Time{}, err
	}

	if raw == "" {
		return days[0], nil
	}

	if choice, cerr := strconv.Atoi(raw); cerr == nil {
		if choice < 1 || choice > len(days) {
			return time.Time{}, fmt.Errorf("day choice %d out of range", choice)
		}

		return days[choice-1], nil
	}

	// A full date is accepted too, as long as the device has footage for it.
	// The listed days carry the recorder's zone, so match on the calendar
	// date rather than the instant.
	if _, perr := time.Parse("2006-01-02", raw); perr != nil {
		return time.Time{}, fmt.Errorf("invalid day %q", raw)
	}

	for _, day := range days {
		if day.Format("2006-01-02") == raw {
			return day, nil
		}
	}

	return time.Time{}, fmt.Errorf("no recordings on %s", raw)
}

func (p *Prompter) selectWorkers(maxWorkers int) (int, error) {
	raw, err := p.prompt(fmt.Sprintf("Workers (1-%d) [%d]: ", maxWorkers, maxWorkers))
	if err != nil {
		return 0, err
	}

	if raw == "" {
		return maxWorkers, nil
	}

	workers, err := strconv.Atoi(raw)
	if err != nil || workers < 1 || workers > maxWorkers {
		return 0, fmt.Errorf("workers must be between 1 and %d", maxWorkers)
	}

	return workers, nil
}

func (p *Prompter) prompt(label string) (string, error) {
	fmt.Fprint(p.out, label)

	return readLine(p.in)
}

func (p *Prompter) confirm(label string) (bool, error) {
	raw, err := p.prompt(label)
	if err != nil {
		return false, err
	}

	answer := strings.ToLower(raw)

	return answer == "" || answer == "y" || answer == "yes", nil
}
